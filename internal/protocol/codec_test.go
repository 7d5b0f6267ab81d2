package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestClientMessageRoundTrip(t *testing.T) {
	cases := []ClientMessage{
		{Type: RPCHandshake, Handshake: &HandshakeRequest{ClientMaxVersion: 1}},
		{
			Type: RPCLaunch,
			Launch: &LaunchRequest{
				Path:     "/bin/sh",
				Argv:     []string{"sh", "-c", "echo hi"},
				Envp:     []string{"PATH=/usr/bin:/bin"},
				Width:    80,
				Height:   24,
				IsUTF8:   1,
				Pwd:      "/tmp",
				UniqueID: 42,
			},
		},
		{Type: RPCWait, Wait: &WaitRequest{Pid: 1234}},
	}

	for _, want := range cases {
		t.Run(want.Type.String(), func(t *testing.T) {
			frame, err := EncodeClientMessage(want)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if frame.FD != -1 {
				t.Fatalf("client message must never carry a fd, got %d", frame.FD)
			}
			got, err := DecodeClientMessage(frame.Payload, 0)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(want, got) {
				t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
			}
		})
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	cases := []struct {
		msg ServerMessage
		fd  int
	}{
		{ServerMessage{Type: RPCHandshake, Handshake: &HandshakeResponse{ProtocolVersion: 1, NumChildren: 2}}, -1},
		{ServerMessage{Type: RPCLaunch, Launch: &LaunchResponse{Status: 0, Pid: 555}}, 7},
		{ServerMessage{Type: RPCLaunch, Launch: &LaunchResponse{Status: -1, Pid: 0}}, -1},
		{ServerMessage{Type: RPCWait, Wait: &WaitResponse{Pid: 10, Status: 0, Errno: 0}}, -1},
		{ServerMessage{Type: RPCReportChild, ReportChild: &ReportChild{
			IsLast: 1, Pid: 99, Path: "/bin/bash", Argv: []string{"bash"}, Envp: []string{"X=1"},
			IsUTF8: 1, Pwd: "/home", Terminated: 0,
		}}, 9},
		{ServerMessage{Type: RPCTermination, Termination: &Termination{Pid: 17}}, -1},
	}

	for _, tc := range cases {
		t.Run(tc.msg.Type.String(), func(t *testing.T) {
			frame, err := EncodeServerMessage(tc.msg, tc.fd)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			fdCount := 0
			if frame.FD >= 0 {
				fdCount = 1
			}
			got, err := DecodeServerMessage(frame.Payload, fdCount)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(tc.msg, got) {
				t.Fatalf("round trip mismatch: want %+v, got %+v", tc.msg, got)
			}
		})
	}
}

// TestTagOrderingStrictness verifies property #2: swapping two tagged
// fields in a valid encoding must fail to decode.
func TestTagOrderingStrictness(t *testing.T) {
	frame, err := EncodeClientMessage(ClientMessage{
		Type: RPCWait,
		Wait: &WaitRequest{Pid: 123},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// The frame is: [type header+value][pid header+value]. Swap the two
	// 8-byte headers (tag+length) while leaving values in place, which
	// breaks the tag/value alignment the decoder expects.
	corrupt := append([]byte(nil), frame.Payload...)
	var typeHeader, pidHeader [8]byte
	copy(typeHeader[:], corrupt[0:8])
	copy(pidHeader[:], corrupt[12:20])
	copy(corrupt[0:8], pidHeader[:])
	copy(corrupt[12:20], typeHeader[:])

	if _, err := DecodeClientMessage(corrupt, 0); err == nil {
		t.Fatal("expected decode error after swapping tagged fields, got nil")
	} else if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestDecodeRejectsTruncatedLength(t *testing.T) {
	frame, err := EncodeClientMessage(ClientMessage{
		Type:      RPCHandshake,
		Handshake: &HandshakeRequest{ClientMaxVersion: 1},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	truncated := frame.Payload[:len(frame.Payload)-2]
	if _, err := DecodeClientMessage(truncated, 0); err == nil {
		t.Fatal("expected decode error for truncated payload")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	frame, err := EncodeClientMessage(ClientMessage{
		Type: RPCWait,
		Wait: &WaitRequest{Pid: 1},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	withGarbage := append(append([]byte(nil), frame.Payload...), 0xAB)
	if _, err := DecodeClientMessage(withGarbage, 0); err == nil {
		t.Fatal("expected decode error for trailing bytes")
	}
}

// TestFDDiscipline verifies property #3: a frame with an unexpected
// ancillary fd count is a decode error, for both directions.
func TestFDDiscipline(t *testing.T) {
	t.Run("client message with unexpected fd", func(t *testing.T) {
		frame, err := EncodeClientMessage(ClientMessage{
			Type: RPCWait,
			Wait: &WaitRequest{Pid: 1},
		})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := DecodeClientMessage(frame.Payload, 1); !errors.Is(err, ErrFDCount) {
			t.Fatalf("expected ErrFDCount, got %v", err)
		}
	})

	t.Run("failed launch response must not carry a fd", func(t *testing.T) {
		frame, err := EncodeServerMessage(ServerMessage{
			Type:   RPCLaunch,
			Launch: &LaunchResponse{Status: -1, Pid: 0},
		}, 5)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := DecodeServerMessage(frame.Payload, 1); !errors.Is(err, ErrFDCount) {
			t.Fatalf("expected ErrFDCount, got %v", err)
		}
	})

	t.Run("successful launch response requires exactly one fd", func(t *testing.T) {
		frame, err := EncodeServerMessage(ServerMessage{
			Type:   RPCLaunch,
			Launch: &LaunchResponse{Status: 0, Pid: 42},
		}, 5)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := DecodeServerMessage(frame.Payload, 0); !errors.Is(err, ErrFDCount) {
			t.Fatalf("expected ErrFDCount for missing fd, got %v", err)
		}
	})

	t.Run("reportChild requires exactly one fd", func(t *testing.T) {
		frame, err := EncodeServerMessage(ServerMessage{
			Type: RPCReportChild,
			ReportChild: &ReportChild{
				IsLast: 1, Pid: 1, Path: "/bin/sh", Argv: []string{"sh"}, Envp: nil, Pwd: "/",
			},
		}, 3)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := DecodeServerMessage(frame.Payload, 0); !errors.Is(err, ErrFDCount) {
			t.Fatalf("expected ErrFDCount, got %v", err)
		}
	})

	t.Run("termination must not carry a fd", func(t *testing.T) {
		frame, err := EncodeServerMessage(ServerMessage{
			Type:        RPCTermination,
			Termination: &Termination{Pid: 9},
		}, -1)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := DecodeServerMessage(frame.Payload, 1); !errors.Is(err, ErrFDCount) {
			t.Fatalf("expected ErrFDCount, got %v", err)
		}
	})
}

func TestDecodeRejectsWrongType(t *testing.T) {
	frame, err := EncodeServerMessage(ServerMessage{
		Type:        RPCTermination,
		Termination: &Termination{Pid: 1},
	}, -1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Server-originated frames are never valid as client-originated ones.
	if _, err := DecodeClientMessage(frame.Payload, 0); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestEmptyStringArrayRoundTrips(t *testing.T) {
	want := ClientMessage{
		Type: RPCLaunch,
		Launch: &LaunchRequest{
			Path: "/bin/true", Argv: nil, Envp: []string{},
			Width: 80, Height: 24, IsUTF8: 0, Pwd: "/", UniqueID: 0,
		},
	}
	frame, err := EncodeClientMessage(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeClientMessage(frame.Payload, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Launch.Argv) != 0 || len(got.Launch.Envp) != 0 {
		t.Fatalf("expected empty arrays to round trip as empty, got %+v", got.Launch)
	}
}
