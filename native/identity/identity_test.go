package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	byAddress map[string]Agent
	byName    map[string]Agent
}

func newMemStore() *memStore {
	return &memStore{byAddress: make(map[string]Agent), byName: make(map[string]Agent)}
}

func (m *memStore) UpsertAgent(ctx context.Context, a Agent) error {
	m.byAddress[a.Address] = a
	m.byName[a.Name] = a
	return nil
}

func (m *memStore) TouchAgent(ctx context.Context, address string, lastSeen int64) error {
	a, ok := m.byAddress[address]
	if !ok {
		return nil
	}
	a.LastSeen = lastSeen
	m.byAddress[address] = a
	m.byName[a.Name] = a
	return nil
}

func (m *memStore) GetAgent(ctx context.Context, address string) (Agent, bool, error) {
	a, ok := m.byAddress[address]
	return a, ok, nil
}

func (m *memStore) GetAgentByName(ctx context.Context, name string) (Agent, bool, error) {
	a, ok := m.byName[name]
	return a, ok, nil
}

func (m *memStore) ListAgents(ctx context.Context, limit, offset int) ([]Agent, error) {
	out := make([]Agent, 0, len(m.byAddress))
	for _, a := range m.byAddress {
		out = append(out, a)
	}
	return out, nil
}

type fakeAttestor struct{ verified bool }

func (f fakeAttestor) VerifyOnChain(ctx context.Context, walletAddress string) (bool, error) {
	return f.verified, nil
}

type fakeWallet struct{ verified bool }

func (f fakeWallet) VerifyWalletSignature(ctx context.Context, walletAddress, signature string) (bool, error) {
	return f.verified, nil
}

func fixedClock(t int64) func() int64 { return func() int64 { return t } }

func TestRegisterUnverifiedAssignsStableSyntheticAddress(t *testing.T) {
	ctx := context.Background()
	id := New(newMemStore(), nil, nil, fixedClock(1000))

	a1, err := id.RegisterUnverified(ctx, "scout", "", nil)
	require.NoError(t, err)
	require.Equal(t, TierUnverified, a1.Tier)
	require.NotEmpty(t, a1.Address)

	a2, err := id.RegisterUnverified(ctx, "scout", "", nil)
	require.NoError(t, err)
	require.Equal(t, a1.Address, a2.Address, "re-registering the same name returns the existing agent")
}

func TestRegisterWalletLinkedUpgradesTierMonotonically(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := New(store, nil, nil, fixedClock(1000))

	_, err := id.RegisterUnverified(ctx, "scout", "", nil)
	require.NoError(t, err)

	a, err := id.RegisterWalletLinked(ctx, "scout", "0xWALLET", "")
	require.NoError(t, err)
	require.Equal(t, TierWalletLinked, a.Tier)
}

func TestRegisterWalletLinkedRefusedOnBadSignature(t *testing.T) {
	ctx := context.Background()
	id := New(newMemStore(), nil, fakeWallet{verified: false}, fixedClock(1000))

	_, err := id.RegisterWalletLinked(ctx, "scout", "0xWALLET", "bad-sig")
	require.Error(t, err)
}

func TestPromoteOnChainRequiresAttestation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := New(store, fakeAttestor{verified: true}, nil, fixedClock(1000))

	agent, err := id.RegisterWalletLinked(ctx, "scout", "0xWALLET", "")
	require.NoError(t, err)

	promoted, err := id.PromoteOnChain(ctx, agent.Address)
	require.NoError(t, err)
	require.Equal(t, TierOnChain, promoted.Tier)
}

func TestPromoteOnChainFailsWithoutVerifier(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := New(store, nil, nil, fixedClock(1000))

	agent, err := id.RegisterUnverified(ctx, "scout", "", nil)
	require.NoError(t, err)

	_, err = id.PromoteOnChain(ctx, agent.Address)
	require.Error(t, err)
}

func TestTierWeightOrdering(t *testing.T) {
	require.Equal(t, uint32(1), TierUnverified.Weight())
	require.Equal(t, uint32(2), TierWalletLinked.Weight())
	require.Equal(t, uint32(3), TierOnChain.Weight())
}

func TestTouchLastSeenUpdatesAgent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := New(store, nil, nil, fixedClock(1000))

	agent, err := id.RegisterUnverified(ctx, "scout", "", nil)
	require.NoError(t, err)

	require.NoError(t, id.TouchLastSeen(ctx, agent.Address, 5000))
	got, ok, err := id.Lookup(ctx, agent.Address)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5000), got.LastSeen)
}
