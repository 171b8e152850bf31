package auth

import (
	"context"
	"fmt"
	"strings"
)

// StaticClients is a ClientStore built from configuration.
type StaticClients struct {
	clients map[string]Client
}

// ParseStaticClients reads "subject:bcrypthash[,subject:bcrypthash...]".
func ParseStaticClients(raw string) (*StaticClients, error) {
	clients := make(map[string]Client)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		subject, hash, ok := strings.Cut(entry, ":")
		subject = strings.TrimSpace(subject)
		hash = strings.TrimSpace(hash)
		if !ok || hash == "" {
			return nil, fmt.Errorf("api key entry %q is not subject:hash", entry)
		}
		if err := validateSubject(subject); err != nil {
			return nil, fmt.Errorf("api key entry %q: %w", entry, err)
		}
		if _, dup := clients[subject]; dup {
			return nil, fmt.Errorf("api key subject %q listed twice", subject)
		}
		clients[subject] = Client{Subject: subject, KeyHash: hash}
	}
	return &StaticClients{clients: clients}, nil
}

// FindClient implements ClientStore.
func (s *StaticClients) FindClient(_ context.Context, subject string) (Client, error) {
	client, ok := s.clients[subject]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return client, nil
}

// Len returns the number of configured clients.
func (s *StaticClients) Len() int {
	return len(s.clients)
}
