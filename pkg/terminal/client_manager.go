package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"
)

const (
	MaxClientsDefault = 32
	RateLimitDefault  = 30 // connection attempts per IP and minute
	rateLimitWindow   = time.Minute
)

// RateLimitInfo counts connection attempts of one IP address.
type RateLimitInfo struct {
	requests  int
	lastReset time.Time
}

// ClientManager tracks connected consoles by session ID.
type ClientManager struct {
	clients    map[string]*Client        // sessionID -> Client
	rateLimits map[string]*RateLimitInfo // ipAddress -> RateLimitInfo
	maxClients int
	maxRate    int
	mu         sync.RWMutex
}

// NewClientManager reads its limits from the [Network] section.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:    make(map[string]*Client),
		rateLimits: make(map[string]*RateLimitInfo),
		maxClients: configuration.GetInt("Network", "max_clients", MaxClientsDefault),
		maxRate:    configuration.GetInt("Network", "max_connects_per_minute", RateLimitDefault),
	}
}

// AddClient registers client. It fails when the client limit is reached or
// the session already has a console attached.
func (cm *ClientManager) AddClient(sessionID string, client *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.clients[sessionID]; exists {
		return fmt.Errorf("session %s already has a console", sessionID)
	}
	if len(cm.clients) >= cm.maxClients {
		return fmt.Errorf("too many consoles (%d)", cm.maxClients)
	}
	cm.clients[sessionID] = client
	logger.Debug(logger.AreaConsole, "Client added for session %s", sessionID)
	return nil
}

// RemoveClient forgets the console of sessionID.
func (cm *ClientManager) RemoveClient(sessionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.clients[sessionID]; exists {
		delete(cm.clients, sessionID)
		logger.Debug(logger.AreaConsole, "Client removed for session %s", sessionID)
	}
}

// GetClientCount returns the number of connected consoles.
func (cm *ClientManager) GetClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// HasClient reports whether sessionID has a console attached.
func (cm *ClientManager) HasClient(sessionID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, exists := cm.clients[sessionID]
	return exists
}

// Clients returns a snapshot of the connected consoles.
func (cm *ClientManager) Clients() []*Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		clients = append(clients, c)
	}
	return clients
}

// CheckRateLimit counts a connection attempt from ipAddress.
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	rateLimit, exists := cm.rateLimits[ipAddress]
	if !exists || now.Sub(rateLimit.lastReset) > rateLimitWindow {
		rateLimit = &RateLimitInfo{lastReset: now}
		cm.rateLimits[ipAddress] = rateLimit
	}

	rateLimit.requests++
	if rateLimit.requests > cm.maxRate {
		logger.Warn(logger.AreaConsole, "Rate limit exceeded for IP %s: %d connects in last minute", ipAddress, rateLimit.requests)
		return fmt.Errorf("rate limit exceeded: too many connects from %s", ipAddress)
	}
	return nil
}
