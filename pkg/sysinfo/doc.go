// Package sysinfo supplies the system metadata that authenticates an
// agent: the JSON serialization of a Metadata snapshot is what gets
// ciphered into the X-AUTH-DATA header.
//
// System is the production provider (gopsutil). Static returns a fixed
// snapshot for tests and for deployments where probing the host is
// undesirable.
package sysinfo
