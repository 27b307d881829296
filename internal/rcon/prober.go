// Package rcon asks a running server over its remote console whether it is listening,
// and relays commands to it.
package rcon

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorcon/rcon"

	"github.com/payperplay/easyservers/pkg/logger"
)

// unknownCommand is how the game answers a command it does not accept.
const unknownCommand = "Unknown or incomplete command"

var (
	colorCodes   = regexp.MustCompile(`§.`)
	playersOfMax = regexp.MustCompile(`There are (\d+) of a max (?:of )?(\d+) players`)
	playersSlash = regexp.MustCompile(`There are (\d+)/(\d+) players`)
)

// Prober talks RCON to servers on the local host.
type Prober struct {
	host    string
	timeout time.Duration
}

// NewProber creates a prober. An empty host means 127.0.0.1.
func NewProber(host string, timeout time.Duration) *Prober {
	if host == "" {
		host = "127.0.0.1"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{host: host, timeout: timeout}
}

// Probe sends "list". ok is false on any connection, auth or transport error, and when
// the server rejects the command.
func (p *Prober) Probe(port int, password string) (string, bool) {
	return p.try(port, password, "list")
}

// RequestStop asks the server to shut down.
func (p *Prober) RequestStop(port int, password string) (string, bool) {
	return p.try(port, password, "stop")
}

// Execute runs command and returns the raw reply.
func (p *Prober) Execute(port int, password, command string) (string, error) {
	conn, err := rcon.Dial(
		net.JoinHostPort(p.host, strconv.Itoa(port)),
		password,
		rcon.SetDialTimeout(p.timeout),
		rcon.SetDeadline(p.timeout),
	)
	if err != nil {
		return "", fmt.Errorf("RCON connection failed: %w", err)
	}
	defer conn.Close()

	response, err := conn.Execute(command)
	if err != nil {
		return "", fmt.Errorf("RCON command failed: %w", err)
	}

	return response, nil
}

func (p *Prober) try(port int, password, command string) (string, bool) {
	response, err := p.Execute(port, password, command)
	if err != nil {
		logger.Debug("RCON request failed", map[string]interface{}{
			"port":    port,
			"command": command,
			"error":   err.Error(),
		})
		return "", false
	}
	if !IsSuccess(response) {
		return response, false
	}
	return response, true
}

// IsSuccess reports whether a reply is not a command rejection.
func IsSuccess(response string) bool {
	return !strings.Contains(response, unknownCommand)
}

// ParsePlayerCount extracts the online and maximum player counts from a "list" reply.
func ParsePlayerCount(response string) (current int, max int) {
	clean := colorCodes.ReplaceAllString(response, "")

	// "There are 3 of a max of 20 players online:"
	if m := playersOfMax.FindStringSubmatch(clean); len(m) == 3 {
		current, _ = strconv.Atoi(m[1])
		max, _ = strconv.Atoi(m[2])
		return current, max
	}

	// "There are 3/20 players online:"
	if m := playersSlash.FindStringSubmatch(clean); len(m) == 3 {
		current, _ = strconv.Atoi(m[1])
		max, _ = strconv.Atoi(m[2])
		return current, max
	}

	return 0, 0
}
