// game-room-router brokers binary WebSocket traffic between one
// authoritative server connection and many client connections
// partitioned into numbered rooms.
package main

import (
	"game-room-router/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		panic(err)
	}

	if err := application.Run(); err != nil {
		panic(err)
	}
}

