//go:build !unix

package autotools

func checkExecutable(string) error { return nil }
