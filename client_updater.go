package scoped

// Contains the client updater, which publishes JSON-encoded messages
// giving the latest scoped state on the status port.

import (
	"encoding/json"
	"fmt"
	"log"

	zmq "github.com/pebbe/zmq4"
)

// ClientUpdate carries the messages to be published on the status port.
type ClientUpdate struct {
	tag   string
	state interface{}
}

// RunClientUpdater forwards any message from its input channel to the ZMQ
// publisher socket to publish any information that clients need to know.
// If the socket cannot be set up it keeps draining the channel, so
// senders never block on a missing publisher.
func RunClientUpdater(messages <-chan ClientUpdate, portstatus int) {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		log.Printf("could not create status socket: %v", err)
		drainClientUpdates(messages)
		return
	}
	defer pubSocket.Close()
	hostname := fmt.Sprintf("tcp://*:%d", portstatus)
	if err := pubSocket.Bind(hostname); err != nil {
		log.Printf("could not bind status socket to %s: %v", hostname, err)
		drainClientUpdates(messages)
		return
	}

	for update := range messages {
		message, err := json.Marshal(update.state)
		if err != nil {
			ProblemLogger.Printf("could not encode status update %q: %v", update.tag, err)
			continue
		}
		if _, err := pubSocket.SendMessage(update.tag, message); err != nil {
			ProblemLogger.Printf("could not publish status update %q: %v", update.tag, err)
		}
	}
}

func drainClientUpdates(messages <-chan ClientUpdate) {
	for range messages {
	}
}
