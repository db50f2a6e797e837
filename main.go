package main

import "github.com/edgeflare/kcp/cmd/kcp"

func main() {
	kcp.Main()
}
