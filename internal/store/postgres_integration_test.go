// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/freshtrack/freshtrack/internal/auth"
	"github.com/freshtrack/freshtrack/internal/store"
)

// setupPostgres starts a container, migrates it and opens a Handle.
func setupPostgres() (*store.Handle, string, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("freshtrack_test"),
		postgres.WithUsername("freshtrack"),
		postgres.WithPassword("freshtrack"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, "", nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, "", nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, "", nil, err
	}

	h, err := store.Open(ctx, connStr)
	if err != nil {
		return nil, "", nil, err
	}

	cleanup := func() {
		_ = h.Close()
		_ = container.Terminate(ctx)
	}
	return h, connStr, cleanup, nil
}

var _ = Describe("Postgres user store", func() {
	var (
		h       *store.Handle
		connStr string
		cleanup func()
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		h, connStr, cleanup, err = setupPostgres()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	newUser := func(email string) *auth.User {
		u, err := auth.NewUser(email, "Full Name", "00112233445566778899aabbccddeeff$abcd")
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	Describe("Create", func() {
		It("stores and retrieves users case-insensitively", func() {
			u := newUser("a@x.com")
			Expect(h.Users.Create(ctx, u)).To(Succeed())

			got, err := h.Users.GetByEmail(ctx, "A@X.COM")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(u.ID))
			Expect(got.CreatedAt).To(BeTemporally("~", u.CreatedAt, time.Millisecond))
		})

		It("admits exactly one of many concurrent registrations", func() {
			const workers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				ok   int
				dups int
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					err := h.Users.Create(ctx, newUser("race@x.com"))
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						ok++
					} else if errors.Is(err, auth.ErrDuplicateIdentity) {
						dups++
					}
				}()
			}
			wg.Wait()
			Expect(ok).To(Equal(1))
			Expect(dups).To(Equal(workers - 1))
		})

		It("rejects an empty digest at the schema level", func() {
			u := newUser("b@x.com")
			u.PasswordDigest = ""
			Expect(h.Users.Create(ctx, u)).NotTo(Succeed())
		})
	})

	Describe("Update", func() {
		It("moves the email and enforces uniqueness", func() {
			a := newUser("a@x.com")
			b := newUser("b@x.com")
			Expect(h.Users.Create(ctx, a)).To(Succeed())
			Expect(h.Users.Create(ctx, b)).To(Succeed())

			a.Email = "c@x.com"
			Expect(h.Users.Update(ctx, a)).To(Succeed())

			b.Email = "C@x.com"
			err := h.Users.Update(ctx, b)
			Expect(errors.Is(err, auth.ErrDuplicateIdentity)).To(BeTrue())
		})
	})

	Describe("Migrator", func() {
		It("rolls back and reapplies cleanly", func() {
			m, err := store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
			defer m.Close()

			version, dirty, err := m.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
			Expect(version).To(BeNumerically(">", 0))

			Expect(m.Steps(-1)).To(Succeed())
			Expect(m.Steps(1)).To(Succeed())

			pending, err := m.PendingMigrations()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			Expect(m.Force(int(version))).To(Succeed())
		})
	})
})
