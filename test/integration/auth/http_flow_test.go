// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/freshtrack/freshtrack/internal/httpapi"
)

type sessionBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		FullName string `json:"full_name"`
	} `json:"user"`
}

type detailBody struct {
	Detail string `json:"detail"`
}

func call(method, path, token string, body any) (*http.Response, []byte) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, buf.Bytes()
}

func register(email, password, name string) (*http.Response, sessionBody) {
	resp, raw := call(http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": password, "full_name": name,
	})
	var s sessionBody
	if resp.StatusCode == http.StatusOK {
		Expect(json.Unmarshal(raw, &s)).To(Succeed())
	}
	return resp, s
}

func detailOf(raw []byte) string {
	var d detailBody
	Expect(json.Unmarshal(raw, &d)).To(Succeed())
	return d.Detail
}

var _ = Describe("Account lifecycle over HTTP", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		truncateUsers(ctx, env.pool)
	})

	It("registers, logs in and reads the profile", func() {
		resp, session := register("  Ann@Example.COM ", "pw-123456", "Ann")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(session.TokenType).To(Equal("bearer"))
		Expect(session.User.Email).To(Equal("ann@example.com"))

		resp, raw := call(http.MethodPost, "/auth/login", "", map[string]string{
			"email": "ANN@example.com", "password": "pw-123456",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var login sessionBody
		Expect(json.Unmarshal(raw, &login)).To(Succeed())
		Expect(login.User.ID).To(Equal(session.User.ID))

		resp, raw = call(http.MethodGet, "/users/me", login.AccessToken, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(raw)).To(ContainSubstring(`"full_name":"Ann"`))
		Expect(string(raw)).NotTo(ContainSubstring("password"))
	})

	It("rejects a second registration for the same address", func() {
		resp, _ := register("dup@example.com", "pw-123456", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, raw := call(http.MethodPost, "/auth/register", "", map[string]string{
			"email": "DUP@example.com", "password": "other-pw",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(detailOf(raw)).To(Equal(httpapi.DetailEmailTaken))
	})

	It("admits exactly one of many concurrent registrations", func() {
		const workers = 6
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			codes []int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resp, _ := register("race@example.com", "pw-123456", "")
				mu.Lock()
				defer mu.Unlock()
				codes = append(codes, resp.StatusCode)
			}()
		}
		wg.Wait()

		ok := 0
		for _, c := range codes {
			if c == http.StatusOK {
				ok++
			} else {
				Expect(c).To(Equal(http.StatusBadRequest))
			}
		}
		Expect(ok).To(Equal(1))
	})

	It("gives the same answer for unknown emails and wrong passwords", func() {
		resp, _ := register("known@example.com", "right-pw", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		unknown, rawUnknown := call(http.MethodPost, "/auth/login", "", map[string]string{
			"email": "nobody@example.com", "password": "right-pw",
		})
		wrong, rawWrong := call(http.MethodPost, "/auth/login", "", map[string]string{
			"email": "known@example.com", "password": "wrong-pw",
		})
		Expect(unknown.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(wrong.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(detailOf(rawUnknown)).To(Equal(detailOf(rawWrong)))
		Expect(detailOf(rawWrong)).To(Equal(httpapi.DetailInvalidCredentials))
	})

	It("updates the profile and keeps emails unique", func() {
		_, first := register("first@example.com", "pw-123456", "First")
		_, second := register("second@example.com", "pw-123456", "Second")

		resp, raw := call(http.MethodPut, "/users/me", first.AccessToken, map[string]string{
			"full_name": "Renamed", "email": "Moved@Example.com",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(raw)).To(ContainSubstring(`"email":"moved@example.com"`))
		Expect(string(raw)).To(ContainSubstring(`"full_name":"Renamed"`))

		resp, raw = call(http.MethodPut, "/users/me", second.AccessToken, map[string]string{
			"email": "moved@example.com",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(detailOf(raw)).To(Equal(httpapi.DetailEmailTaken))

		resp, _ = call(http.MethodPost, "/auth/login", "", map[string]string{
			"email": "moved@example.com", "password": "pw-123456",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("rejects requests without a valid token", func() {
		resp, raw := call(http.MethodGet, "/users/me", "", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(resp.Header.Get("WWW-Authenticate")).To(Equal("Bearer"))
		Expect(detailOf(raw)).To(Equal(httpapi.DetailNotAuthenticated))

		resp, _ = call(http.MethodGet, "/users/me", "not-a-token", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("reports public endpoints without authentication", func() {
		resp, raw := call(http.MethodGet, "/config/public", "", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(raw)).To(ContainSubstring(`"public_url":"http://192.168.1.20:3000"`))
	})

	It("counts auth outcomes", func() {
		before := testutil.ToFloat64(env.metrics.AuthOperations.WithLabelValues("login", "rejected"))
		call(http.MethodPost, "/auth/login", "", map[string]string{"email": "x@example.com", "password": "y"})
		after := testutil.ToFloat64(env.metrics.AuthOperations.WithLabelValues("login", "rejected"))
		Expect(after - before).To(Equal(1.0))
	})
})
