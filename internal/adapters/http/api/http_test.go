package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/trustledger/internal/adapters/http/api"
	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/internal/domain/scoring"
	"github.com/okian/trustledger/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies is a scripted service.
type mockDependencies struct {
	result     types.InteractionResult
	recordErr  error
	recorded   []string
	display    types.DisplayRecord
	displayErr error
	receipts   map[string]string
	dropped    map[string]bool
	status     types.QueueStatus
	minMatch   int
	minRep     int
}

func (m *mockDependencies) RecordInteraction(_ context.Context, identity, interactionType string, quality int) (types.InteractionResult, error) {
	m.recorded = append(m.recorded, fmt.Sprintf("%s/%s/%d", identity, interactionType, quality))
	return m.result, m.recordErr
}

func (m *mockDependencies) GetReputation(context.Context, string) (types.DisplayRecord, error) {
	return m.display, m.displayErr
}

func (m *mockDependencies) GetTaskState(taskID string) (model.TaskState, string) {
	if sig, ok := m.receipts[taskID]; ok {
		return model.TaskCommitted, sig
	}
	if m.dropped[taskID] {
		return model.TaskDropped, ""
	}
	return model.TaskPending, ""
}

func (m *mockDependencies) GetQueueStatus(context.Context) types.QueueStatus {
	return m.status
}

func (m *mockDependencies) Compatibility(a, b scoring.Profile) int {
	return scoring.NewCompatibilityScorer().Score(a, b)
}

func (m *mockDependencies) RankCandidates(current scoring.Profile, candidates []scoring.Candidate, minMatchScore, minReputation int) []scoring.Candidate {
	m.minMatch, m.minRep = minMatchScore, minReputation
	s := scoring.NewCompatibilityScorer()
	return s.Filter(s.Rank(current, candidates), minMatchScore, minReputation)
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats(context.Context) map[string]interface{} {
	return m.stats
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}).Register(context.Background(), mux)
	return mux
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then the health endpoint should serve metrics", func() {
			w := serve(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And the stats endpoint should serve JSON", func() {
			w := serve(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("And unknown methods should be rejected", func() {
			So(serve(mux, http.MethodDelete, "/trust-score", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodGet, "/match/score", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And unknown paths should 404", func() {
			So(serve(mux, http.MethodGet, "/does-not-exist", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestTrustScore_Post(t *testing.T) {
	Convey("Given a trust score endpoint", t, func() {
		deps := &mockDependencies{result: types.InteractionResult{
			TaskID: "t-1", Signature: "async_t-1", NewScore: 653, OnChain: true,
		}}
		mux := newMux(deps)

		Convey("When a valid interaction is posted", func() {
			w := serve(mux, http.MethodPost, "/trust-score",
				`{"walletAddress":"W1","interactionType":"match","qualityScore":85}`)

			var body struct {
				Success bool           `json:"success"`
				Data    map[string]any `json:"data"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)

			Convey("Then the task reference and new score should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(body.Success, ShouldBeTrue)
				So(body.Data["signature"], ShouldEqual, "async_t-1")
				So(body.Data["newScore"], ShouldEqual, 653)
				So(body.Data["onChain"], ShouldEqual, true)
				So(body.Data["mode"], ShouldEqual, "blockchain")
				So(body.Data["recorded"], ShouldEqual, true)
				So(deps.recorded, ShouldResemble, []string{"W1/match/85"})
			})
		})

		Convey("When the queue did not accept the write", func() {
			deps.result.OnChain = false
			deps.result.Signature = ""
			w := serve(mux, http.MethodPost, "/trust-score",
				`{"walletAddress":"W1","interactionType":"chat","qualityScore":0}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"mode":"cached"`)
			So(deps.recorded, ShouldResemble, []string{"W1/chat/0"})
		})

		Convey("When fields are missing", func() {
			for _, body := range []string{
				`{"interactionType":"match","qualityScore":1}`,
				`{"walletAddress":"W1","qualityScore":1}`,
				`{"walletAddress":"W1","interactionType":"match"}`,
				`not json`,
			} {
				w := serve(mux, http.MethodPost, "/trust-score", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.recorded, ShouldBeEmpty)
		})

		Convey("When the service rejects the input", func() {
			deps.recordErr = fmt.Errorf("%w: quality", types.ErrInvalidInput)
			w := serve(mux, http.MethodPost, "/trust-score",
				`{"walletAddress":"W1","interactionType":"match","qualityScore":101}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "invalid_input")
		})

		Convey("When the service fails otherwise", func() {
			deps.recordErr = errors.New("boom")
			w := serve(mux, http.MethodPost, "/trust-score",
				`{"walletAddress":"W1","interactionType":"match","qualityScore":50}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestTrustScore_Get(t *testing.T) {
	Convey("Given a trust score endpoint", t, func() {
		deps := &mockDependencies{display: types.DisplayRecord{
			BaseScore: types.DefaultReadBaseScore, Source: types.SourceDefault,
		}}
		mux := newMux(deps)

		Convey("When reading a wallet", func() {
			w := serve(mux, http.MethodGet, "/trust-score?wallet=W1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"source":"default"`)
			So(w.Body.String(), ShouldContainSubstring, `"baseScore":100`)
		})

		Convey("When the wallet is missing", func() {
			So(serve(mux, http.MethodGet, "/trust-score", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the wallet is malformed", func() {
			deps.displayErr = types.ErrInvalidInput
			So(serve(mux, http.MethodGet, "/trust-score?wallet=bad", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestBlockchainStatus(t *testing.T) {
	Convey("Given a status endpoint", t, func() {
		deps := &mockDependencies{
			receipts: map[string]string{"t-1": "5sig"},
			dropped:  map[string]bool{"t-3": true},
			status:   types.QueueStatus{QueueLength: 3, IsProcessing: true, CachedSignatures: 1},
		}
		mux := newMux(deps)

		Convey("When asking for a committed task", func() {
			w := serve(mux, http.MethodGet, "/blockchain-status?taskId=t-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"completed"`)
			So(w.Body.String(), ShouldContainSubstring, `"signature":"5sig"`)
		})

		Convey("When asking for an unknown task", func() {
			w := serve(mux, http.MethodGet, "/blockchain-status?taskId=t-2", "")
			So(w.Body.String(), ShouldEqual, `{"taskId":"t-2","signature":null,"status":"processing"}`+"\n")
		})

		Convey("When asking for a task the ledger rejected", func() {
			w := serve(mux, http.MethodGet, "/blockchain-status?taskId=t-3", "")
			So(w.Body.String(), ShouldEqual, `{"taskId":"t-3","signature":null,"status":"dropped"}`+"\n")
		})

		Convey("When asking for the queue", func() {
			w := serve(mux, http.MethodGet, "/blockchain-status", "")
			So(w.Body.String(), ShouldEqual, `{"queueLength":3,"isProcessing":true,"cachedSignatures":1}`+"\n")
		})
	})
}

func TestMatch(t *testing.T) {
	Convey("Given the match endpoints", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When scoring two identical profiles", func() {
			w := serve(mux, http.MethodPost, "/match/score",
				`{"a":{"riskCategory":"balanced","keywords":["defi"],"reputation":700},
				  "b":{"riskCategory":"Balanced","keywords":["DEFI"],"reputation":700}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"score":98`)
		})

		Convey("When a risk category is unknown", func() {
			w := serve(mux, http.MethodPost, "/match/score",
				`{"a":{"riskCategory":"yolo"},"b":{"riskCategory":"balanced"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When ranking candidates with default thresholds", func() {
			w := serve(mux, http.MethodPost, "/match/rank", `{
				"current":{"riskCategory":"balanced","keywords":["defi","nft"],"reputation":700},
				"candidates":[
					{"id":"far","riskCategory":"aggressive","reputation":10},
					{"id":"close","riskCategory":"balanced","keywords":["defi","nft"],"reputation":650}
				]}`)

			var body struct {
				Candidates []struct {
					ID         string `json:"id"`
					MatchScore int    `json:"matchScore"`
				} `json:"candidates"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.minMatch, ShouldEqual, -1)
			So(body.Candidates, ShouldHaveLength, 1)
			So(body.Candidates[0].ID, ShouldEqual, "close")
		})

		Convey("When ranking with explicit thresholds", func() {
			w := serve(mux, http.MethodPost, "/match/rank", `{
				"current":{"riskCategory":"balanced"},
				"candidates":[{"id":"x","riskCategory":"balanced"}],
				"minMatchScore":0,"minReputation":0}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.minMatch, ShouldEqual, 0)
			So(deps.minRep, ShouldEqual, 0)
			So(w.Body.String(), ShouldContainSubstring, `"id":"x"`)
		})

		Convey("When a candidate has no id", func() {
			w := serve(mux, http.MethodPost, "/match/rank",
				`{"current":{"riskCategory":"balanced"},"candidates":[{"riskCategory":"balanced"}]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given a wrapped API error", t, func() {
		cause := errors.New("missing walletAddress")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: bad request: missing walletAddress")
		So(api.NewKind("api.op", api.ErrInternal).Error(), ShouldEqual, "api.op: internal error")
	})
}
