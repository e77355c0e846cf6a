package sfo

import "fmt"

// AdminRoom is the global room every admin session joins on attach
// (spec.md §4.4).
const AdminRoom = "admin"

func userRoom(owner string) string      { return fmt.Sprintf("user:%s", owner) }
func marketRoom(contract string) string { return fmt.Sprintf("market:%s", contract) }
