// Package repository persists gift orders and their slots.  The sentinel
// errors below let the service layer tell storage outcomes apart from
// infrastructure failures regardless of which backend is in use.
package repository

import "errors"

// ErrOrderNotFound is returned when no order exists for a room/token pair.
var ErrOrderNotFound = errors.New("order not found")

// ErrDuplicateToken is returned by SaveOrder when the (room, token) pair
// is already taken.  Callers treat it like a pre-insert collision.
var ErrDuplicateToken = errors.New("duplicate token in room")

// ErrSlotTaken is returned by SaveSlotClaim when the slot already has a
// receiver, i.e. another claimant won the race.
var ErrSlotTaken = errors.New("slot already taken")

// ErrReceiverExists is returned by SaveSlotClaim when the receiver
// already holds another slot of the same order.
var ErrReceiverExists = errors.New("receiver already holds a slot")
