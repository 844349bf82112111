// Package identity implements agent registration and tier resolution.
// Tier is attached to every vote cast by an agent; later tier changes never
// re-weight past votes (spec.md §4.6).
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lukechampine.com/blake3"
)

// Tier is a monotonically-ordered trust level. Higher tiers never downgrade.
type Tier uint8

const (
	TierUnverified Tier = iota
	TierWalletLinked
	TierOnChain
)

// Weight returns the governance vote weight for the tier (spec.md §4.4).
func (t Tier) Weight() uint32 {
	switch t {
	case TierOnChain:
		return 3
	case TierWalletLinked:
		return 2
	default:
		return 1
	}
}

func (t Tier) String() string {
	switch t {
	case TierOnChain:
		return "on-chain"
	case TierWalletLinked:
		return "wallet-linked"
	default:
		return "unverified"
	}
}

// ParseTier parses the wire representation of a tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "unverified", "":
		return TierUnverified, nil
	case "wallet-linked":
		return TierWalletLinked, nil
	case "on-chain":
		return TierOnChain, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

// Agent is a registered participant in the mesh.
type Agent struct {
	Address       string
	Name          string
	Tier          Tier
	WalletAddress string
	ServiceURL    string
	Protocols     []string
	RegisteredAt  int64
	LastSeen      int64
}

// AttestationVerifier confirms an on-chain identity record for promotion to
// TierOnChain. Its implementation is an external collaborator (spec.md §1);
// glyphmesh only consumes the boolean result.
type AttestationVerifier interface {
	VerifyOnChain(ctx context.Context, walletAddress string) (bool, error)
}

// WalletSignatureVerifier confirms control of a wallet address for promotion
// to TierWalletLinked. Also an external collaborator.
type WalletSignatureVerifier interface {
	VerifyWalletSignature(ctx context.Context, walletAddress string, signature string) (bool, error)
}

// Store is the persistence port Identity writes through.
type Store interface {
	UpsertAgent(ctx context.Context, a Agent) error
	TouchAgent(ctx context.Context, address string, lastSeen int64) error
	GetAgent(ctx context.Context, address string) (Agent, bool, error)
	GetAgentByName(ctx context.Context, name string) (Agent, bool, error)
	ListAgents(ctx context.Context, limit, offset int) ([]Agent, error)
}

// Identity registers agents and resolves their tier.
type Identity struct {
	store    Store
	attest   AttestationVerifier
	wallet   WalletSignatureVerifier
	now      func() int64
	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs an Identity service. attest and wallet may be nil if the
// corresponding tier promotion path is unused.
func New(store Store, attest AttestationVerifier, wallet WalletSignatureVerifier, now func() int64) *Identity {
	return &Identity{store: store, attest: attest, wallet: wallet, now: now, inflight: make(map[string]struct{})}
}

// RegisterUnverified creates (or returns the existing) agent identified only
// by name, generating a stable synthetic address.
func (id *Identity) RegisterUnverified(ctx context.Context, name string, serviceURL string, protocols []string) (Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Agent{}, errors.New("agent name required")
	}
	if existing, ok, err := id.store.GetAgentByName(ctx, name); err != nil {
		return Agent{}, err
	} else if ok {
		return existing, nil
	}

	now := id.now()
	agent := Agent{
		Address:      syntheticAddress(name, now),
		Name:         name,
		Tier:         TierUnverified,
		ServiceURL:   serviceURL,
		Protocols:    protocols,
		RegisteredAt: now,
		LastSeen:     now,
	}
	if err := id.store.UpsertAgent(ctx, agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// RegisterWalletLinked creates or upgrades an agent to TierWalletLinked. If
// signature is non-empty and a verifier is configured, registration is
// refused when the verifier returns false.
func (id *Identity) RegisterWalletLinked(ctx context.Context, name, walletAddress, signature string) (Agent, error) {
	name = strings.TrimSpace(name)
	walletAddress = strings.TrimSpace(walletAddress)
	if name == "" || walletAddress == "" {
		return Agent{}, errors.New("name and wallet address required")
	}
	if signature != "" && id.wallet != nil {
		ok, err := id.wallet.VerifyWalletSignature(ctx, walletAddress, signature)
		if err != nil {
			return Agent{}, err
		}
		if !ok {
			return Agent{}, errors.New("wallet signature verification failed")
		}
	}

	now := id.now()
	agent, exists, err := id.store.GetAgentByName(ctx, name)
	if err != nil {
		return Agent{}, err
	}
	if !exists {
		agent = Agent{Address: syntheticAddress(name, now), Name: name, RegisteredAt: now}
	}
	agent.WalletAddress = walletAddress
	agent.LastSeen = now
	agent.Tier = maxTier(agent.Tier, TierWalletLinked)
	if err := id.store.UpsertAgent(ctx, agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// PromoteOnChain upgrades an existing agent to TierOnChain after the
// attestation collaborator confirms an on-chain identity record.
func (id *Identity) PromoteOnChain(ctx context.Context, address string) (Agent, error) {
	agent, ok, err := id.store.GetAgent(ctx, address)
	if err != nil {
		return Agent{}, err
	}
	if !ok {
		return Agent{}, fmt.Errorf("agent %q not registered", address)
	}
	if id.attest == nil {
		return Agent{}, errors.New("no attestation verifier configured")
	}
	verified, err := id.attest.VerifyOnChain(ctx, agent.WalletAddress)
	if err != nil {
		return Agent{}, err
	}
	if !verified {
		return Agent{}, errors.New("on-chain attestation failed")
	}
	agent.Tier = maxTier(agent.Tier, TierOnChain)
	if err := id.store.UpsertAgent(ctx, agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// TouchLastSeen records that address originated a message at nowMillis.
func (id *Identity) TouchLastSeen(ctx context.Context, address string, nowMillis int64) error {
	return id.store.TouchAgent(ctx, address, nowMillis)
}

// Lookup resolves a registered agent by address.
func (id *Identity) Lookup(ctx context.Context, address string) (Agent, bool, error) {
	return id.store.GetAgent(ctx, address)
}

// LookupByName resolves a registered agent by name.
func (id *Identity) LookupByName(ctx context.Context, name string) (Agent, bool, error) {
	return id.store.GetAgentByName(ctx, name)
}

// List returns a page of registered agents.
func (id *Identity) List(ctx context.Context, limit, offset int) ([]Agent, error) {
	return id.store.ListAgents(ctx, limit, offset)
}

func maxTier(a, b Tier) Tier {
	if b > a {
		return b
	}
	return a
}

// syntheticAddress derives a stable local identifier for an unverified agent
// from its name and registration time, reusing blake3's 32-byte digest the
// same way native/knowledge hashes messages.
func syntheticAddress(name string, registeredAt int64) string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s|%d", name, registeredAt)))
	return "ag1" + hex.EncodeToString(sum[:])[:24]
}
