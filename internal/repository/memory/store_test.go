package memory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/service/campaign"
	"github.com/ignite/giftdrive/internal/service/claim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) (*Store, string) {
	t.Helper()
	s := NewStore()
	ctx := context.Background()
	at := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Campaigns().Create(ctx, &domain.Campaign{ID: "c1", Name: "Drive", Status: domain.CampaignActive, CreatedAt: at}))
	require.NoError(t, s.Campaigns().CreateFamily(ctx, &domain.Family{ID: "f1", CampaignID: "c1", Alias: "Family 1", CreatedAt: at}))
	require.NoError(t, s.Campaigns().CreateGift(ctx, &domain.Gift{ID: "g1", FamilyID: "f1", Name: "Bike", Quantity: 2, CreatedAt: at}))
	return s, "g1"
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	s, giftID := seed(t)
	ctx := context.Background()

	tx, err := s.Claims().BeginTx(ctx, sql.LevelDefault)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClaim(ctx, &domain.Claim{ID: "k1", GiftID: giftID, Quantity: 1}))

	// Own writes are visible inside the transaction only.
	inTx, err := tx.GiftWithClaims(ctx, giftID)
	require.NoError(t, err)
	assert.Len(t, inTx.Claims, 1)

	outside, err := s.Claims().GetGift(ctx, giftID)
	require.NoError(t, err)
	assert.Empty(t, outside.Claims)

	require.NoError(t, tx.Rollback())
	after, err := s.Claims().GetGift(ctx, giftID)
	require.NoError(t, err)
	assert.Empty(t, after.Claims)

	assert.ErrorIs(t, tx.Commit(), sql.ErrTxDone)
}

func TestTx_CommitAppliesWritesAndDeletes(t *testing.T) {
	s, giftID := seed(t)
	ctx := context.Background()

	tx, _ := s.Claims().BeginTx(ctx, sql.LevelDefault)
	require.NoError(t, tx.InsertClaim(ctx, &domain.Claim{ID: "k1", GiftID: giftID, Quantity: 1}))
	require.NoError(t, tx.Commit())

	tx, _ = s.Claims().BeginTx(ctx, sql.LevelDefault)
	removed, err := tx.DeleteClaim(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", removed.ID)
	_, err = tx.DeleteClaim(ctx, "k1")
	assert.ErrorIs(t, err, claim.ErrClaimNotFound)
	require.NoError(t, tx.Commit())

	g, err := s.Claims().GetGift(ctx, giftID)
	require.NoError(t, err)
	assert.Empty(t, g.Claims)
	assert.Equal(t, "c1", g.CampaignID)
	assert.Equal(t, "Family 1", g.FamilyAlias)
}

func TestBeginTx_WaitsForOpenTransaction(t *testing.T) {
	s, _ := seed(t)
	tx, err := s.Claims().BeginTx(context.Background(), sql.LevelDefault)
	require.NoError(t, err)
	defer tx.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Claims().BeginTx(ctx, sql.LevelDefault)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Admin writes queue behind the claim transaction too.
	err = s.Campaigns().UpdateStatus(ctx, "c1", domain.CampaignActive, domain.CampaignClosed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInsertClaim_UnknownGift(t *testing.T) {
	s, _ := seed(t)
	ctx := context.Background()
	tx, _ := s.Claims().BeginTx(ctx, sql.LevelDefault)
	defer tx.Rollback()
	assert.ErrorIs(t, tx.InsertClaim(ctx, &domain.Claim{ID: "k1", GiftID: "nope", Quantity: 1}), claim.ErrGiftNotFound)
}

func TestDeleteFamily_Cascades(t *testing.T) {
	s, giftID := seed(t)
	ctx := context.Background()
	require.NoError(t, s.Campaigns().CreatePerson(ctx, &domain.Person{ID: "p1", FamilyID: "f1", FirstName: "Maya"}))

	tx, _ := s.Claims().BeginTx(ctx, sql.LevelDefault)
	require.NoError(t, tx.InsertClaim(ctx, &domain.Claim{ID: "k1", GiftID: giftID, Quantity: 1, DonorEmail: "ann@example.com"}))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.Campaigns().DeleteFamily(ctx, "f1"))

	_, err := s.Claims().GetGift(ctx, giftID)
	assert.ErrorIs(t, err, claim.ErrGiftNotFound)
	claims, err := s.Claims().ListClaimsByDonor(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Empty(t, claims)
	assert.ErrorIs(t, s.Campaigns().DeletePerson(ctx, "p1"), campaign.ErrPersonNotFound)
	assert.ErrorIs(t, s.Campaigns().DeleteFamily(ctx, "f1"), campaign.ErrFamilyNotFound)
}

func TestCreateGift_PersonFromOtherFamily(t *testing.T) {
	s, _ := seed(t)
	ctx := context.Background()
	require.NoError(t, s.Campaigns().CreateFamily(ctx, &domain.Family{ID: "f2", CampaignID: "c1", Alias: "Family 2"}))
	require.NoError(t, s.Campaigns().CreatePerson(ctx, &domain.Person{ID: "p2", FamilyID: "f2", FirstName: "Leo"}))

	pid := "p2"
	err := s.Campaigns().CreateGift(ctx, &domain.Gift{ID: "g9", FamilyID: "f1", PersonID: &pid, Name: "Kite", Quantity: 1})
	assert.ErrorIs(t, err, campaign.ErrPersonNotFound)
}

func TestListDropOffDue(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 12, 18, 9, 0, 0, 0, time.UTC)
	in := now.Add(12 * time.Hour)
	out := now.Add(72 * time.Hour)
	require.NoError(t, s.Campaigns().Create(ctx, &domain.Campaign{ID: "a", Status: domain.CampaignActive, DropOffDeadline: &in}))
	require.NoError(t, s.Campaigns().Create(ctx, &domain.Campaign{ID: "b", Status: domain.CampaignActive, DropOffDeadline: &out}))
	require.NoError(t, s.Campaigns().Create(ctx, &domain.Campaign{ID: "c", Status: domain.CampaignClosed, DropOffDeadline: &in}))
	require.NoError(t, s.Campaigns().Create(ctx, &domain.Campaign{ID: "d", Status: domain.CampaignActive}))

	due, err := s.Campaigns().ListDropOffDue(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].ID)
}
