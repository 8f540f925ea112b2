package contact

import (
	"context"
	"errors"
	"testing"

	"beacon/cmd/identity"
)

func newTestService(t *testing.T, userIDs ...string) *Service {
	t.Helper()
	users := identity.NewMemoryStore()
	for _, id := range userIDs {
		users.Seed(identity.User{ID: id, Username: "user-" + id})
	}
	return NewService(nil, users, NewMemoryStore())
}

func strp(s string) *string { return &s }

func TestCreateRequiresKnownOwner(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "alice")
	ctx := context.Background()

	_, err := svc.Create(ctx, "ghost", CreateInput{Name: "Mom", Phone: strp("+15550001111")})
	if !identity.IsNotFound(err) {
		t.Fatalf("expected not-found for unknown owner, got %v", err)
	}
}

func TestCreateRequiresPhoneOrEmail(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "alice")
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", CreateInput{Name: "Mom"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateRejectsDuplicates(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "alice")
	ctx := context.Background()

	if _, err := svc.Create(ctx, "alice", CreateInput{Name: "Mom", Phone: strp("+15550001111")}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := svc.Create(ctx, "alice", CreateInput{Name: "Mother", Phone: strp("+1 555 000 1111")})
	if !IsConflict(err) {
		t.Fatalf("expected phone conflict, got %v", err)
	}

	if _, err := svc.Create(ctx, "alice", CreateInput{Name: "Dad", Email: strp("dad@example.com")}); err != nil {
		t.Fatalf("create email contact: %v", err)
	}
	_, err = svc.Create(ctx, "alice", CreateInput{Name: "Father", Email: strp("DAD@example.com")})
	if !IsConflict(err) {
		t.Fatalf("expected email conflict, got %v", err)
	}

	if _, err := svc.Create(ctx, "alice", CreateInput{Name: "Bob", Phone: strp("+15550002222"), ContactUserID: strp("bob")}); err != nil {
		t.Fatalf("create linked contact: %v", err)
	}
	_, err = svc.Create(ctx, "alice", CreateInput{Name: "Bobby", Phone: strp("+15550003333"), ContactUserID: strp("bob")})
	if !IsConflict(err) {
		t.Fatalf("expected contact_user_id conflict, got %v", err)
	}
}

func TestAcceptedRecipientsFiltersStatusAndRegistration(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "alice")
	ctx := context.Background()

	// Accepted + registered: eligible.
	if _, err := svc.Create(ctx, "alice", CreateInput{
		Name: "Bob", Phone: strp("+15550002222"), ContactUserID: strp("bob"), Status: StatusAccepted,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Accepted but unregistered: phone-only, no live fan-out.
	if _, err := svc.Create(ctx, "alice", CreateInput{
		Name: "Mom", Phone: strp("+15550001111"), Status: StatusAccepted,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Registered but still pending: not eligible.
	if _, err := svc.Create(ctx, "alice", CreateInput{
		Name: "Carol", Email: strp("carol@example.com"), ContactUserID: strp("carol"), Status: StatusPending,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.AcceptedRecipients(ctx, "alice")
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(got) != 1 || got[0] != "bob" {
		t.Fatalf("recipients=%v want [bob]", got)
	}

	accepted, err := svc.AcceptedContacts(ctx, "alice")
	if err != nil {
		t.Fatalf("accepted contacts: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("accepted contacts=%d want 2 (registered + unregistered)", len(accepted))
	}
}

func TestAcceptanceIsDirectional(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "alice", "bob")
	ctx := context.Background()

	// Alice accepted Bob; Bob never accepted Alice.
	if _, err := svc.Create(ctx, "alice", CreateInput{
		Name: "Bob", Phone: strp("+15550002222"), ContactUserID: strp("bob"), Status: StatusAccepted,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	fromAlice, err := svc.AcceptedRecipients(ctx, "alice")
	if err != nil {
		t.Fatalf("recipients(alice): %v", err)
	}
	if len(fromAlice) != 1 || fromAlice[0] != "bob" {
		t.Fatalf("recipients(alice)=%v want [bob]", fromAlice)
	}

	fromBob, err := svc.AcceptedRecipients(ctx, "bob")
	if err != nil {
		t.Fatalf("recipients(bob): %v", err)
	}
	if len(fromBob) != 0 {
		t.Fatalf("recipients(bob)=%v want empty", fromBob)
	}
}

func TestUpdateStatusAndDelete(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "alice")
	ctx := context.Background()

	c, err := svc.Create(ctx, "alice", CreateInput{Name: "Bob", Phone: strp("+15550002222"), ContactUserID: strp("bob")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.UpdateStatus(ctx, "alice", c.ID, StatusAccepted)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Fatalf("status=%s want accepted", got.Status)
	}

	if _, err := svc.UpdateStatus(ctx, "alice", c.ID, Status("friendly")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid status rejection, got %v", err)
	}

	if err := svc.Delete(ctx, "alice", c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, "alice", c.ID); !IsNotFound(err) {
		t.Fatalf("expected not-found on second delete, got %v", err)
	}
}
