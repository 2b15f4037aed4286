package domain

const MaxRoomCodeLen = 16

// RoomCode is the short alphanumeric code a room is addressed by. Codes are
// issued by the collaborator API; the relay only checks their shape.
type RoomCode string
