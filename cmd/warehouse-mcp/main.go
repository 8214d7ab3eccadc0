package main

import (
	"context"
	"os"
)

func main() {
	env := environment{
		lookup: os.LookupEnv,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		serve:  serve,
	}
	os.Exit(execute(context.Background(), os.Args[1:], env))
}
