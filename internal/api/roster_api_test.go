package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-roster/internal/api"
	"github.com/stacklok/toolhive-roster/internal/projection"
	"github.com/stacklok/toolhive-roster/internal/reconcile"
	"github.com/stacklok/toolhive-roster/internal/store"
)

var _ = Describe("Roster HTTP API", func() {
	var (
		tempDir  string
		rosterFS *store.FileStore
		server   *httptest.Server
	)

	send := func(method, path string, body any) *http.Response {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req, err := http.NewRequestWithContext(ctx, method, server.URL+path, &buf)
		Expect(err).NotTo(HaveOccurred())
		resp, err := server.Client().Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	rows := func() []projection.Row {
		resp := send(http.MethodGet, "/v1/rows", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var out []projection.Row
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return out
	}

	ids := func(rs []projection.Row) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		rosterFS = store.NewFileStore(filepath.Join(tempDir, "data", store.DefaultFileName))

		engine := reconcile.New(rosterFS)
		view := projection.NewView(store.LoadOrEmpty(ctx, rosterFS))
		engine.Subscribe(view)

		server = httptest.NewServer(api.NewServer(engine, view,
			api.WithReadinessCheck(api.StoreReadiness(rosterFS)),
		))
		DeferCleanup(server.Close)
	})

	Context("with an empty roster", func() {
		It("reports ready and no rows", func() {
			Expect(send(http.MethodGet, "/readiness", nil).StatusCode).To(Equal(http.StatusOK))
			Expect(rows()).To(BeEmpty())
		})

		It("ignores a blank client id", func() {
			resp := send(http.MethodPost, "/v1/clients/%20%20/connect", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			_, err := os.Stat(rosterFS.Path())
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Context("when clients connect and disconnect", func() {
		BeforeEach(func() {
			Expect(send(http.MethodPost, "/v1/clients/A/connect",
				api.ConnectRequest{DisplayName: "Alice", FamilyID: "7"}).StatusCode).To(Equal(http.StatusOK))
			Expect(send(http.MethodPost, "/v1/clients/B/connect",
				api.ConnectRequest{DisplayName: "Bob", FamilyID: "3"}).StatusCode).To(Equal(http.StatusOK))
			Expect(send(http.MethodPost, "/v1/clients/A/disconnect", nil).StatusCode).To(Equal(http.StatusOK))
		})

		It("orders active clients first", func() {
			Expect(ids(rows())).To(Equal([]string{"B", "A"}))
		})

		It("persists history to the roster file", func() {
			reg, err := rosterFS.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.IDs).To(Equal([]string{"A", "B"}))
			Expect(reg.Names).To(Equal([]string{"Alice", "Bob"}))
			Expect(reg.Active).To(Equal([]string{"B"}))
		})

		It("reconciles against a live snapshot", func() {
			resp := send(http.MethodPut, "/v1/live", api.LiveRosterRequest{IDs: []string{"A", "C"}})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out api.OutcomeResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Changed).To(BeTrue())

			got := rows()
			Expect(ids(got)).To(Equal([]string{"A", "C", "B"}))
			Expect(got[1].DisplayName).To(Equal("C"))

			resp = send(http.MethodGet, "/v1/active/count", nil)
			var count api.ActiveCountResponse
			Expect(json.NewDecoder(resp.Body).Decode(&count)).To(Succeed())
			Expect(count.Active).To(Equal(2))
		})

		It("treats a repeated connect as a no-op", func() {
			before, err := os.ReadFile(rosterFS.Path())
			Expect(err).NotTo(HaveOccurred())

			resp := send(http.MethodPost, "/v1/clients/B/connect", api.ConnectRequest{DisplayName: "Bob", FamilyID: "3"})
			var out api.OutcomeResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Changed).To(BeFalse())

			after, err := os.ReadFile(rosterFS.Path())
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})
	})

	Context("when another process writes the roster file", func() {
		It("serves the persisted roster", func() {
			other := reconcile.New(store.NewFileStore(rosterFS.Path()))
			other.Connect(ctx, "A")
			other.Connect(ctx, "B")

			Expect(ids(rows())).To(Equal([]string{"A", "B"}))

			resp := send(http.MethodGet, "/v1/active/count", nil)
			var count api.ActiveCountResponse
			Expect(json.NewDecoder(resp.Body).Decode(&count)).To(Succeed())
			Expect(count.Active).To(Equal(2))
		})
	})

	Context("when the roster file is corrupt", func() {
		BeforeEach(func() {
			Expect(os.MkdirAll(filepath.Dir(rosterFS.Path()), 0750)).To(Succeed())
			Expect(os.WriteFile(rosterFS.Path(), []byte("{not json"), 0600)).To(Succeed())
		})

		It("reports not ready but still accepts events", func() {
			Expect(send(http.MethodGet, "/readiness", nil).StatusCode).To(Equal(http.StatusServiceUnavailable))

			Expect(send(http.MethodPost, "/v1/clients/X/connect", nil).StatusCode).To(Equal(http.StatusOK))
			Expect(ids(rows())).To(Equal([]string{"X"}))
			Expect(send(http.MethodGet, "/readiness", nil).StatusCode).To(Equal(http.StatusOK))
		})
	})
})
