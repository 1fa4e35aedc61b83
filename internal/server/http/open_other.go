//go:build !linux

package http

const noatime = 0
