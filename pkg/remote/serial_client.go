package remote

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	"github.com/fieldtrack/agent/pkg/trace"
)

const (
	knotsToMps = 0.514444

	// maxSentences bounds how much chatter one fetch reads while
	// waiting for a usable RMC sentence.
	maxSentences = 128
)

// SerialClient reads fixes from a GPS unit docked on a serial port.
// Docked units only stream the current fix, so history is always empty
// and the trace falls back to the local cache.
type SerialClient struct {
	port        string
	baudRate    int
	readTimeout time.Duration
}

// NewSerialClient creates a SerialClient for the given port and baud rate.
func NewSerialClient(port string, baudRate int, readTimeout time.Duration) *SerialClient {
	return &SerialClient{
		port:        port,
		baudRate:    baudRate,
		readTimeout: readTimeout,
	}
}

// FetchLatest opens the port and scans for the first valid RMC sentence.
func (s *SerialClient) FetchLatest(ctx context.Context, deviceID string) (trace.RawPoint, error) {
	c := &serial.Config{Name: s.port, Baud: s.baudRate, ReadTimeout: s.readTimeout}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	defer p.Close() // Ensure the port is closed when done

	scanner := bufio.NewScanner(p)
	for sentences := 0; sentences < maxSentences && scanner.Scan(); sentences++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") || !strings.Contains(line, "RMC") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// Garbled lines are routine on a serial link
			continue
		}

		rmc, ok := sentence.(nmea.RMC)
		if !ok || rmc.Validity != nmea.ValidRMC {
			continue
		}

		return s.rawPointFromRMC(rmc), nil
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("no valid GPS fix on %s", s.port)
}

// FetchHistory always returns an empty list; see the type comment.
func (s *SerialClient) FetchHistory(ctx context.Context, deviceID string) ([]trace.RawPoint, error) {
	return nil, nil
}

// Close is a no-op; the port is opened and closed per fetch.
func (s *SerialClient) Close() error {
	return nil
}

// rawPointFromRMC converts an RMC sentence into the loose payload shape
// the normalizer consumes. The timestamp is omitted when the unit has
// not acquired a date yet, and the normalizer then defaults it.
func (s *SerialClient) rawPointFromRMC(rmc nmea.RMC) trace.RawPoint {
	raw := trace.RawPoint{
		"lat":   rmc.Latitude,
		"lon":   rmc.Longitude,
		"speed": rmc.Speed * knotsToMps,
	}

	if rmc.Date.Valid && rmc.Time.Valid {
		fix := time.Date(
			2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
			rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
			rmc.Time.Millisecond*int(time.Millisecond), time.UTC,
		)
		raw["ts"] = fix.Unix()
	}

	return raw
}
