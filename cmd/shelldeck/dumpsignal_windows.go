//go:build windows

package main

func watchDumpSignal(string) func() { return func() {} }
