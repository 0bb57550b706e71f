package main

import (
	"reflect"
	"testing"

	"lanarena/protocol"
)

func TestUniqueRooms(t *testing.T) {
	alpha := protocol.RoomDescriptor{Host: "192.168.1.20", RoomCode: "ALPHA"}
	beta := protocol.RoomDescriptor{Host: "192.168.1.21", RoomCode: "BETA"}
	wild := protocol.RoomDescriptor{Host: "0.0.0.0", RoomCode: "WILD"}

	got := uniqueRooms([]protocol.RoomDescriptor{alpha, beta, wild, alpha, beta, alpha})
	want := []protocol.RoomDescriptor{alpha, beta}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if got := uniqueRooms(nil); got == nil || len(got) != 0 {
		t.Errorf("Expected an empty slice, got %#v", got)
	}
}
