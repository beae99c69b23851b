// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import "fmt"

// Inbound is a message received on the broker's ROUTER socket.
//
// Client messages carry Service; worker messages carry Command.
// Body holds every frame after the service or command frame.
type Inbound struct {
	Sender  []byte
	Header  Header
	Service ServiceName
	Command Command
	Body    [][]byte
}

// Decode splits a ROUTER frame sequence
//
//	[sender, "", header, service-or-command, body...]
//
// into an Inbound message.
func Decode(frames [][]byte) (*Inbound, error) {
	if len(frames) < 1 || len(frames[0]) == 0 {
		return nil, fmt.Errorf("%w: missing sender address", ErrMalformed)
	}
	p, err := decodeProtocol(frames[1:])
	if err != nil {
		return nil, err
	}
	p.Sender = frames[0]
	return p, nil
}

// decodeProtocol parses ["", header, service-or-command, body...], the form
// a DEALER peer sends and receives.
func decodeProtocol(frames [][]byte) (*Inbound, error) {
	if len(frames) < 3 {
		return nil, fmt.Errorf("%w: %d frames", ErrMalformed, len(frames))
	}
	if len(frames[0]) != 0 {
		return nil, fmt.Errorf("%w: missing empty delimiter", ErrMalformed)
	}

	msg := &Inbound{
		Header: parseHeader(frames[1]),
		Body:   frames[3:],
	}
	switch msg.Header {
	case HeaderClient:
		msg.Service = ServiceName(frames[2])
		if err := msg.Service.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case HeaderWorker:
		cmd, err := parseCommand(frames[2])
		if err != nil {
			return nil, err
		}
		msg.Command = cmd
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHeader, frames[1])
	}
	return msg, nil
}

// encodeWorker builds [address, "", MDPW01, command, frames...].
// A nil address yields the DEALER form without routing frame.
func encodeWorker(address []byte, cmd Command, frames ...[]byte) [][]byte {
	out := make([][]byte, 0, len(frames)+4)
	if address != nil {
		out = append(out, address)
	}
	out = append(out, []byte{}, HeaderWorker.frame(), cmd.frame())
	return append(out, frames...)
}

// encodeClient builds [address, "", MDPC01, service, body...].
// A nil address yields the DEALER form without routing frame.
func encodeClient(address []byte, service ServiceName, body ...[]byte) [][]byte {
	out := make([][]byte, 0, len(body)+4)
	if address != nil {
		out = append(out, address)
	}
	out = append(out, []byte{}, HeaderClient.frame(), []byte(service))
	return append(out, body...)
}
