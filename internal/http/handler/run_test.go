package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/radar/internal/http/handler"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/queue"
	"basegraph.app/radar/internal/store"
)

var _ = Describe("RunHandler", func() {
	var (
		router   *gin.Engine
		producer *mockProducer
		runs     *mockRunStore
	)

	BeforeEach(func() {
		router = gin.New()
		producer = &mockProducer{}
		runs = &mockRunStore{}
		h := handler.NewRunHandler(producer, runs, func() int64 { return 1234567890123 })
		router.POST("/runs", h.Trigger)
		router.GET("/runs", h.List)
		router.GET("/runs/:id", h.Get)
	})

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Trigger", func() {
		It("queues the run and returns 202 with its ids", func() {
			w := serve(http.MethodPost, "/runs", `{"mode": "weekly"}`)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["run_id"]).To(Equal("1234567890123"))
			Expect(resp["message_id"]).To(Equal("1700000000000-0"))
			Expect(resp["status"]).To(Equal("queued"))

			Expect(producer.requests).To(HaveLen(1))
			Expect(producer.requests[0].Mode).To(Equal(model.ModeWeekly))
			Expect(producer.requests[0].Trigger).To(Equal(model.RunTriggerAPI))
			Expect(*producer.requests[0].RunID).To(Equal(int64(1234567890123)))
		})

		It("rejects unknown modes", func() {
			w := serve(http.MethodPost, "/runs", `{"mode": "hourly"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(producer.requests).To(BeEmpty())
		})

		It("rejects a missing body", func() {
			w := serve(http.MethodPost, "/runs", `{`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 when the queue is down", func() {
			producer.enqueueFn = func(context.Context, queue.RunRequest) (string, error) {
				return "", errors.New("connection refused")
			}
			w := serve(http.MethodPost, "/runs", `{"mode": "daily"}`)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("List", func() {
		It("passes filters through and renders runs", func() {
			started := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
			finished := started.Add(90 * time.Second)
			runs.listFn = func(context.Context, store.ListRunsParams) ([]model.Run, error) {
				return []model.Run{{
					ID:         9,
					Mode:       model.ModeDaily,
					Status:     model.RunStatusSucceeded,
					Trigger:    model.RunTriggerSchedule,
					StartedAt:  started,
					FinishedAt: &finished,
					Metrics:    model.RunMetrics{ItemsAnalyzed: 12},
				}}, nil
			}

			w := serve(http.MethodGet, "/runs?mode=daily&status=succeeded&limit=5", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(runs.listArgs).To(Equal([]store.ListRunsParams{{Mode: model.ModeDaily, Status: model.RunStatusSucceeded, Limit: 5}}))

			var resp struct {
				Runs []map[string]any `json:"runs"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Runs).To(HaveLen(1))
			Expect(resp.Runs[0]["id"]).To(Equal("9"))
			Expect(resp.Runs[0]["duration_ms"]).To(BeEquivalentTo(90000))
			Expect(resp.Runs[0]["metrics"]).To(HaveKeyWithValue("items_analyzed", BeEquivalentTo(12)))
		})

		It("rejects a bad limit", func() {
			w := serve(http.MethodGet, "/runs?limit=-1", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(runs.listArgs).To(BeEmpty())
		})

		It("rejects a bad mode", func() {
			w := serve(http.MethodGet, "/runs?mode=yearly", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 when the store fails", func() {
			runs.listFn = func(context.Context, store.ListRunsParams) ([]model.Run, error) {
				return nil, errors.New("boom")
			}
			w := serve(http.MethodGet, "/runs", "")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Get", func() {
		It("returns a stored run", func() {
			runs.getFn = func(_ context.Context, id int64) (*model.Run, error) {
				run := model.NewRun(id, model.ModeMonthly, model.RunTriggerAPI)
				return run, nil
			}

			w := serve(http.MethodGet, "/runs/77", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("77"))
			Expect(resp["status"]).To(Equal("running"))
			Expect(resp).NotTo(HaveKey("duration_ms"))
		})

		It("returns 404 for unknown runs", func() {
			w := serve(http.MethodGet, "/runs/78", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for malformed ids", func() {
			w := serve(http.MethodGet, "/runs/abc", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
