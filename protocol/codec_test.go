package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestEncodeInputRoundTrip(t *testing.T) {
	line, err := EncodeInput(5, -5)
	if err != nil {
		t.Fatalf("EncodeInput failed: %v", err)
	}

	if string(line) != "{\"dx\":5,\"dy\":-5}\n" {
		t.Errorf("Unexpected wire bytes %q", line)
	}

	in, err := DecodeInput(line[:len(line)-1])
	if err != nil {
		t.Fatalf("DecodeInput failed: %v", err)
	}

	if in.DX != 5 || in.DY != -5 {
		t.Errorf("Expected (5,-5), got (%d,%d)", in.DX, in.DY)
	}
}

func TestDecodeInputRejectsMissingFields(t *testing.T) {
	if _, err := DecodeInput([]byte(`{"dx":1}`)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("Expected ErrMalformedMessage, got %v", err)
	}
}

func TestDecodeWelcome(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"welcome","id":"p1"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	w, ok := msg.(Welcome)
	if !ok {
		t.Fatalf("Expected Welcome, got %T", msg)
	}
	if w.ID != "p1" {
		t.Errorf("Expected id p1, got %s", w.ID)
	}
}

func TestDecodeState(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"state","players":[{"id":"A","x":10,"y":20},{"id":"B","x":1.5,"y":0}]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := State{Players: []PlayerState{{ID: "A", X: 10, Y: 20}, {ID: "B", X: 1.5, Y: 0}}}
	if !reflect.DeepEqual(msg, want) {
		t.Errorf("Expected %+v, got %+v", want, msg)
	}
}

func TestDecodeEmptyState(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"state","players":[]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if st := msg.(State); st.Players == nil || len(st.Players) != 0 {
		t.Errorf("Expected empty non-nil players, got %#v", st.Players)
	}
}

func TestDecodeUnknownTypeIsIgnorable(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"chat","text":"hi"}`))
	if err != nil {
		t.Fatalf("Unknown types should not fail: %v", err)
	}
	if u, ok := msg.(Unknown); !ok || u.Type != "chat" {
		t.Errorf("Expected Unknown{chat}, got %#v", msg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `not json`},
		{"truncated", `{"type":"state","players":[`},
		{"array", `[1,2,3]`},
		{"null", `null`},
		{"missing type", `{"id":"p1"}`},
		{"welcome without id", `{"type":"welcome"}`},
		{"welcome empty id", `{"type":"welcome","id":""}`},
		{"state without players", `{"type":"state"}`},
		{"player without id", `{"type":"state","players":[{"x":1,"y":2}]}`},
		{"player without y", `{"type":"state","players":[{"id":"A","x":1}]}`},
		{"wrong field type", `{"type":"state","players":[{"id":"A","x":"1","y":2}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("Expected ErrMalformedMessage for %q, got %v", tt.line, err)
			}
		})
	}
}

func TestEncodeStateDecodesBack(t *testing.T) {
	players := []PlayerState{{ID: "A", X: 10, Y: 20}}
	line, err := EncodeState(players)
	if err != nil {
		t.Fatalf("EncodeState failed: %v", err)
	}

	if line[len(line)-1] != Delimiter {
		t.Fatal("State line must end with the delimiter")
	}

	msg, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(msg.(State).Players, players) {
		t.Errorf("Expected %+v, got %+v", players, msg)
	}
}

func TestEncodeStateNilPlayers(t *testing.T) {
	line, err := EncodeState(nil)
	if err != nil {
		t.Fatalf("EncodeState failed: %v", err)
	}
	if string(line) != "{\"type\":\"state\",\"players\":[]}\n" {
		t.Errorf("Unexpected encoding %q", line)
	}
}

func TestEncodeWelcome(t *testing.T) {
	line, err := EncodeWelcome("abc")
	if err != nil {
		t.Fatalf("EncodeWelcome failed: %v", err)
	}
	if string(line) != "{\"type\":\"welcome\",\"id\":\"abc\"}\n" {
		t.Errorf("Unexpected encoding %q", line)
	}
}

func TestRoomCodec(t *testing.T) {
	data, err := EncodeRoom(RoomDescriptor{Host: "192.168.1.7", RoomCode: "K3XQ"})
	if err != nil {
		t.Fatalf("EncodeRoom failed: %v", err)
	}

	r, err := DecodeRoom(data)
	if err != nil {
		t.Fatalf("DecodeRoom failed: %v", err)
	}
	if r.Host != "192.168.1.7" || r.RoomCode != "K3XQ" {
		t.Errorf("Fields not preserved: %+v", r)
	}

	// Extra fields are tolerated
	r, err = DecodeRoom([]byte(`{"host":"10.0.0.2","room_code":"AB","players":3}`))
	if err != nil || r.RoomCode != "AB" {
		t.Errorf("Expected tolerant decode, got %+v, %v", r, err)
	}

	for _, bad := range []string{`garbage`, `{"host":"10.0.0.2"}`, `{"room_code":"AB"}`} {
		if _, err := DecodeRoom([]byte(bad)); !errors.Is(err, ErrMalformedRoom) {
			t.Errorf("Expected ErrMalformedRoom for %q, got %v", bad, err)
		}
	}
}

func TestIsProbe(t *testing.T) {
	if !IsProbe([]byte("DISCOVER_ROOM")) {
		t.Error("Probe not recognised")
	}
	if !IsProbe([]byte("DISCOVER_ROOM\n")) {
		t.Error("Probe with trailing newline not recognised")
	}
	if IsProbe([]byte("DISCOVER")) {
		t.Error("Partial probe recognised")
	}
}

func TestIsUnspecifiedHost(t *testing.T) {
	cases := map[string]bool{
		"0.0.0.0":     true,
		"::":          true,
		"127.0.0.1":   false,
		"example.lan": false,
	}
	for host, want := range cases {
		if got := IsUnspecifiedHost(host); got != want {
			t.Errorf("IsUnspecifiedHost(%q) = %v, want %v", host, got, want)
		}
	}
}
