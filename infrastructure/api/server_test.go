package api

import (
	"bytes"
	"code-lab/domain/execution"
	"code-lab/domain/session"
	"code-lab/errors"
	"code-lab/mocks"
	"code-lab/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	router       http.Handler
	synchronizer *mocks.MockISynchronizer
	searcher     *mocks.MockFileSearcher
	executor     *mocks.MockExecutor
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	synchronizer := mocks.NewMockISynchronizer(ctrl)
	searcher := mocks.NewMockFileSearcher(ctrl)
	executor := mocks.NewMockExecutor(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	server := NewServer(log,
		services.NewWorkspaceService(synchronizer, searcher),
		services.NewRunService(executor),
		nil, nil)
	return fixture{router: server.Router(), synchronizer: synchronizer, searcher: searcher, executor: executor}
}

func (f fixture) do(t *testing.T, method, target string, body any, out any) int {
	t.Helper()
	var payload bytes.Buffer
	if s, ok := body.(string); ok {
		payload.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, httptest.NewRequest(method, target, &payload))
	if out != nil {
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(out))
	}
	return recorder.Code
}

func TestServer_Run(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.executor.EXPECT().Run(gomock.Any(), execution.Request{
		Session: "room", Language: "python", Source: "print('hello')",
	}).Return(execution.Result{Success: true, Output: "hello\n"}, nil).Times(1)

	var response RunResponse
	status := f.do(t, http.MethodPost, "/run", RunRequest{Session: "room", Language: "python", Code: "print('hello')"}, &response)

	req.Equal(http.StatusOK, status)
	req.Equal(RunResponse{Output: "hello\n", OK: true}, response)
}

func TestServer_Run_Program_Failure_Is_Not_A_Fault(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.executor.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(execution.Result{Success: false, Output: execution.UnsupportedMessage}, nil).Times(1)

	var response RunResponse
	status := f.do(t, http.MethodPost, "/run", RunRequest{Language: "ruby", Code: "puts 1"}, &response)

	req.Equal(http.StatusOK, status)
	req.Equal(RunResponse{Output: execution.UnsupportedMessage, OK: false}, response)
}

func TestServer_Run_Errors(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given missing fields are rejected before any execution
	var failure ErrorResponse
	req.Equal(http.StatusBadRequest, f.do(t, http.MethodPost, "/run", RunRequest{Language: "python"}, &failure))
	req.Equal(http.StatusBadRequest, f.do(t, http.MethodPost, "/run", "{", &failure))

	// Given the workspace cannot be created
	f.executor.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(execution.Result{}, fmt.Errorf("%w: disk full", errors.ErrInfrastructure)).Times(1)

	status := f.do(t, http.MethodPost, "/run", RunRequest{Language: "python", Code: "x"}, &failure)

	req.Equal(http.StatusInternalServerError, status)
	req.Equal(errors.ErrInfrastructure.Error(), failure.Error)
}

func TestServer_Files(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.synchronizer.EXPECT().Files(gomock.Any(), session.ID("room")).
		Return(session.Files{"main.py": "print(1)"}, nil).Times(1)
	f.synchronizer.EXPECT().Files(gomock.Any(), session.ID("empty")).Return(nil, nil).Times(1)

	var response FilesResponse
	req.Equal(http.StatusOK, f.do(t, http.MethodGet, "/files/room", nil, &response))
	req.Equal(session.Files{"main.py": "print(1)"}, response.Files)

	var raw map[string]any
	req.Equal(http.StatusOK, f.do(t, http.MethodGet, "/files/empty", nil, &raw))
	req.Equal(map[string]any{}, raw["files"])
}

func TestServer_Save(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.synchronizer.EXPECT().UpdateFile(gomock.Any(), session.ConnectionID(""), session.UpdateFileCommand{
		Session: "room", Filename: "main.py", Content: "",
	}).Return(nil).Times(1)

	// When an empty content is saved
	var response OKResponse
	status := f.do(t, http.MethodPost, "/files/room/save", `{"filename":"main.py","content":""}`, &response)
	req.Equal(http.StatusOK, status)
	req.True(response.OK)

	// When the filename or the content is missing
	var failure ErrorResponse
	req.Equal(http.StatusBadRequest, f.do(t, http.MethodPost, "/files/room/save", `{"content":"x"}`, &failure))
	req.Equal(http.StatusBadRequest, f.do(t, http.MethodPost, "/files/room/save", `{"filename":"a"}`, &failure))
}

func TestServer_Search(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.searcher.EXPECT().Search(gomock.Any(), session.ID("room"), "hello world").Return(nil, nil).Times(1)

	var response SearchResponse
	req.Equal(http.StatusOK, f.do(t, http.MethodGet, "/files/room/search?q=hello+world", nil, &response))
	req.Equal([]string{}, response.Matches)

	var failure ErrorResponse
	req.Equal(http.StatusBadRequest, f.do(t, http.MethodGet, "/files/room/search", nil, &failure))
}

func TestServer_Health_And_Suggest(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	var ok OKResponse
	req.Equal(http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, &ok))
	req.True(ok.OK)

	var suggestion SuggestResponse
	req.Equal(http.StatusOK, f.do(t, http.MethodPost, "/ai-suggest", `{}`, &suggestion))
	req.Equal(AISuggestDisabled, suggestion.Suggestion)

	req.Equal(http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/run", nil, nil))
}
