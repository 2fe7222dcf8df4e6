package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/processing"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/queue"
	localqueue "github.com/mpapenbr/ams2-telemetry-go/pkg/queue/local"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/service"
	localstore "github.com/mpapenbr/ams2-telemetry-go/pkg/storage/local"
	"github.com/mpapenbr/ams2-telemetry-go/testsupport/memstore"
	"github.com/mpapenbr/ams2-telemetry-go/testsupport/telemetrydata"
)

type testServer struct {
	races  *memstore.RaceStore
	laps   *memstore.LapStore
	store  *localstore.Storage
	jobs   *localqueue.Queue
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		races: memstore.NewRaceStore(),
		laps:  memstore.NewLapStore(),
		store: localstore.New(),
		jobs:  localqueue.New(),
	}
	raceSvc := service.NewRaceService(ts.races, ts.laps, ts.store, ts.jobs)
	compareSvc := service.NewLapCompareService(ts.races, ts.laps, ts.store)
	fuelSvc := service.NewFuelAnalysisService(ts.races, ts.laps, ts.store)
	srv := NewServer(raceSvc, compareSvc, fuelSvc)
	ts.server = httptest.NewServer(srv.Handler())
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) drainJobs(t *testing.T) {
	t.Helper()
	proc := processing.NewRaceProcessor(ts.races, ts.laps, ts.store,
		processing.WithMaxRetries(0))
	ts.jobs.ConsumeAll(context.Background(),
		func(ctx context.Context, job *queue.Job) error {
			return proc.ProcessJob(ctx, job)
		})
}

// uploads a capture through the API and returns the decoded response
func (ts *testServer) upload(t *testing.T, payload []byte) *service.UploadResult {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"data": base64.StdEncoding.EncodeToString(payload),
	})
	require.NoError(t, err)
	resp, err := http.Post(ts.server.URL+"/race/upload",
		"application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result service.UploadResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return &result
}

func (ts *testServer) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_UploadAndStatus(t *testing.T) {
	ts := newTestServer(t)
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(2, 40))

	uploaded := ts.upload(t, payload)
	assert.NotEqual(t, uuid.Nil, uploaded.RaceID)
	assert.Equal(t, model.StatusProcessing, uploaded.Status)
	assert.NotEmpty(t, uploaded.JobID)

	var info model.RaceInfo
	code := ts.get(t,
		fmt.Sprintf("/race/%s/status", uploaded.RaceID), &info)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.StatusProcessing, info.Status)
	assert.Equal(t, 0, info.LapsCount)

	ts.drainJobs(t)

	code = ts.get(t,
		fmt.Sprintf("/race/%s/status", uploaded.RaceID), &info)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.StatusReady, info.Status)
	assert.Equal(t, 2, info.LapsCount)
}

func TestServer_UploadBadRequests(t *testing.T) {
	ts := newTestServer(t)
	post := func(body string) int {
		resp, err := http.Post(ts.server.URL+"/race/upload",
			"application/json", bytes.NewReader([]byte(body)))
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, post("not json"))
	assert.Equal(t, http.StatusBadRequest, post(`{"data": "%%%"}`))
	// empty payload is rejected by the intake
	assert.Equal(t, http.StatusBadRequest, post(`{"data": ""}`))
}

func TestServer_Listings(t *testing.T) {
	ts := newTestServer(t)
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(2, 40))
	first := ts.upload(t, payload)
	second := ts.upload(t, payload)

	var idList struct {
		RaceIDs []uuid.UUID `json:"race_ids"`
	}
	code := ts.get(t, "/race/list_ids", &idList)
	assert.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t,
		[]uuid.UUID{first.RaceID, second.RaceID}, idList.RaceIDs)

	var list struct {
		Races []model.RaceInfo `json:"races"`
	}
	code = ts.get(t, "/race/list", &list)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, list.Races, 2)
}

func TestServer_Download(t *testing.T) {
	ts := newTestServer(t)
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(1, 40))
	uploaded := ts.upload(t, payload)

	var dl struct {
		RaceID uuid.UUID `json:"race_id"`
		Data   string    `json:"data"`
	}
	code := ts.get(t, fmt.Sprintf("/race/%s/download", uploaded.RaceID), &dl)
	assert.Equal(t, http.StatusOK, code)
	decoded, err := base64.StdEncoding.DecodeString(dl.Data)
	assert.NoError(t, err)
	assert.Equal(t, payload, decoded)

	resp, err := http.Get(ts.server.URL +
		fmt.Sprintf("/race/%s/download/raw", uploaded.RaceID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream",
		resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, payload, raw)
}

func TestServer_Delete(t *testing.T) {
	ts := newTestServer(t)
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(1, 40))
	uploaded := ts.upload(t, payload)
	ts.drainJobs(t)

	req, err := http.NewRequest(http.MethodDelete,
		ts.server.URL+fmt.Sprintf("/race/%s", uploaded.RaceID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code := ts.get(t, fmt.Sprintf("/race/%s/status", uploaded.RaceID), nil)
	assert.Equal(t, http.StatusNotFound, code)

	// second delete finds nothing
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServer_Analysis(t *testing.T) {
	ts := newTestServer(t)
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(3, 60))
	uploaded := ts.upload(t, payload)
	ts.drainJobs(t)

	var comparison service.LapComparison
	code := ts.get(t,
		fmt.Sprintf("/race/%s/compare/1/2", uploaded.RaceID), &comparison)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, comparison.DeltaTime.Distance, 1000)

	var fuel service.LapFuelAnalysis
	code = ts.get(t,
		fmt.Sprintf("/race/%s/fuel/1", uploaded.RaceID), &fuel)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, fuel.Summary.LapNumber)
	assert.Len(t, fuel.FuelCurve.Distance, 500)

	var fuelCmp service.FuelComparison
	code = ts.get(t,
		fmt.Sprintf("/race/%s/fuel/compare/1/2", uploaded.RaceID), &fuelCmp)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, fuelCmp.FuelDelta.Distance, 1000)
}

func TestServer_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	unknown := uuid.Must(uuid.NewV4())

	assert.Equal(t, http.StatusNotFound,
		ts.get(t, fmt.Sprintf("/race/%s/status", unknown), nil))
	assert.Equal(t, http.StatusNotFound,
		ts.get(t, "/race/not-a-uuid/status", nil))
	assert.Equal(t, http.StatusNotFound,
		ts.get(t, fmt.Sprintf("/race/%s/compare/1/2", unknown), nil))
	assert.Equal(t, http.StatusNotFound,
		ts.get(t, fmt.Sprintf("/race/%s/compare/one/two", unknown), nil))

	// race exists but is still processing: analysis is a bad request
	payload := telemetrydata.Compress(telemetrydata.SampleCapture(2, 40))
	uploaded := ts.upload(t, payload)
	assert.Equal(t, http.StatusBadRequest,
		ts.get(t, fmt.Sprintf("/race/%s/compare/1/2", uploaded.RaceID), nil))

	ts.drainJobs(t)
	assert.Equal(t, http.StatusNotFound,
		ts.get(t, fmt.Sprintf("/race/%s/fuel/99", uploaded.RaceID), nil))
}
