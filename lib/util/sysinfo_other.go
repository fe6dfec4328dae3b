//go:build !linux

package util

func fillMemoryInfo(_ *SystemInfo) {}
