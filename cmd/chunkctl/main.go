package main

import "github.com/ahmad-rian/muncak-id-pusher-sub000/internal/cli"

func main() {
	cli.Execute()
}
