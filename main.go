/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/papertrade/apiserver/cmd"

func main() {
	cmd.Execute()
}
