package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default. Run timestamps are stored in UTC
// (the MySQL DSN pins loc=UTC), so normalize here.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
