package utils

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizePhoneNumber(t *testing.T) {
	cases := []struct {
		raw, country, want string
		wantErr            bool
	}{
		{"", "US", "", false},
		{"(650) 253-0000", "US", "+16502530000", false},
		{"+1 650 253 0000", "", "+16502530000", false},
		{"650 253 0000", "us", "+16502530000", false},
		{"12345", "US", "", true},
		{"not a phone", "US", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizePhoneNumber(tc.raw, tc.country)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected an error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: expected %q, got %q (%v)", tc.raw, tc.want, got, err)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"w2", "w1", "w2", "w3", "w1"})
	want := []string{"w2", "w1", "w3"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestProcessValidationErrors(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		Email string `validate:"omitempty,email"`
	}
	details := ProcessValidationErrors(ValidateStruct(&input{Email: "nope"}))
	if details["Name"] != "required" || details["Email"] != "email" {
		t.Fatalf("unexpected details: %v", details)
	}
	if got := ProcessValidationErrors(errors.New("plain")); len(got) != 0 {
		t.Fatalf("non-validation error should yield no details, got %v", got)
	}
}

type cachedThing struct {
	Name string
}

func TestRedisHelpersWithoutRedis(t *testing.T) {
	ctx := context.Background()
	if got := redisKey[cachedThing]("42"); got != "cachedThing:42" {
		t.Fatalf("unexpected key %q", got)
	}
	if err := StoreRedis(ctx, &cachedThing{Name: "x"}, "42"); err != nil {
		t.Fatalf("store without redis should be a no-op: %v", err)
	}
	got, err := RetrieveRedis[cachedThing](ctx, "42")
	if err != nil || got != nil {
		t.Fatalf("expected a cache miss, got %+v %v", got, err)
	}
	if err := RemoveRedisItem[cachedThing](ctx, "42"); err != nil {
		t.Fatalf("remove without redis should be a no-op: %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := SetActorInContext(SetCorrelationIdInContext(context.Background(), "cid"), "bob")
	if cid, ok := GetCorrelationIdFromContext(ctx); !ok || cid != "cid" {
		t.Fatalf("unexpected correlation id %q", cid)
	}
	if actor, ok := GetActorFromContext(ctx); !ok || actor != "bob" {
		t.Fatalf("unexpected actor %q", actor)
	}
	if _, ok := GetActorFromContext(context.Background()); ok {
		t.Fatalf("empty context should have no actor")
	}
}
