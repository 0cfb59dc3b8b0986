// Package testing provides shared test utilities for examload.
package testing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/examload/examload/internal/lms"
)

// MockAdmin is an in-memory lms.AdminActions implementation. It records
// every call in order and can be told to fail individual steps.
type MockAdmin struct {
	mu sync.Mutex

	NextCourseID   int64
	NextExamID     int64
	NextExerciseID int64

	// FailOn maps a call name (e.g. "registerParticipantsForExam") to the
	// error that call should return.
	FailOn map[string]error

	// BuildQueueSizes is consumed one value per GetBuildQueueSize call;
	// the last value repeats once the slice is exhausted.
	BuildQueueSizes []int

	Calls           []string
	RegisteredUsers []string
	DeletedCourses  []int64
	DeletedExams    []int64
}

var _ lms.AdminActions = (*MockAdmin)(nil)

// NewMockAdmin creates a mock admin with non-zero id counters.
func NewMockAdmin() *MockAdmin {
	return &MockAdmin{
		NextCourseID:   100,
		NextExamID:     500,
		NextExerciseID: 900,
	}
}

func (m *MockAdmin) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
	if err, ok := m.FailOn[call]; ok {
		return err
	}
	return nil
}

// CallNames returns the calls recorded so far.
func (m *MockAdmin) CallNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// DeletedCourseIDs returns the ids passed to DeleteCourse so far.
func (m *MockAdmin) DeletedCourseIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.DeletedCourses...)
}

// DeletedExamIDs returns the ids passed to DeleteExam so far.
func (m *MockAdmin) DeletedExamIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.DeletedExams...)
}

// RegisteredUsernames returns the usernames registered so far.
func (m *MockAdmin) RegisteredUsernames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.RegisteredUsers...)
}

func (m *MockAdmin) Login(ctx context.Context) error {
	return m.record("login")
}

func (m *MockAdmin) CreateCourse(ctx context.Context) (lms.Course, error) {
	if err := m.record("createCourse"); err != nil {
		return lms.Course{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NextCourseID++
	return lms.Course{ID: m.NextCourseID, Title: "Benchmarking Course"}, nil
}

func (m *MockAdmin) GetCourse(ctx context.Context, courseID int64) (lms.Course, error) {
	if err := m.record("getCourse"); err != nil {
		return lms.Course{}, err
	}
	return lms.Course{ID: courseID, Title: "Existing Course"}, nil
}

func (m *MockAdmin) DeleteCourse(ctx context.Context, courseID int64) error {
	if err := m.record("deleteCourse"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeletedCourses = append(m.DeletedCourses, courseID)
	return nil
}

func (m *MockAdmin) CreateExam(ctx context.Context, course lms.Course) (lms.Exam, error) {
	if err := m.record("createExam"); err != nil {
		return lms.Exam{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NextExamID++
	now := time.Now()
	return lms.Exam{
		ID:          m.NextExamID,
		CourseID:    course.ID,
		Title:       "Benchmarking Exam",
		VisibleDate: now,
		StartDate:   now.Add(time.Hour),
		EndDate:     now.Add(2 * time.Hour),
	}, nil
}

func (m *MockAdmin) CreateExamExercises(ctx context.Context, courseID int64, exam lms.Exam) error {
	return m.record("createExamExercises")
}

func (m *MockAdmin) DeleteExam(ctx context.Context, courseID, examID int64) error {
	if err := m.record("deleteExam"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeletedExams = append(m.DeletedExams, examID)
	return nil
}

func (m *MockAdmin) CreateCourseExercise(ctx context.Context, course lms.Course) (lms.Exercise, error) {
	if err := m.record("createCourseExercise"); err != nil {
		return lms.Exercise{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NextExerciseID++
	return lms.Exercise{ID: m.NextExerciseID, Kind: lms.ExerciseText}, nil
}

func (m *MockAdmin) RegisterParticipants(ctx context.Context, courseID int64, usernames []string) error {
	if err := m.record("registerParticipants"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RegisteredUsers = append(m.RegisteredUsers, usernames...)
	return nil
}

func (m *MockAdmin) RegisterParticipantsForExam(ctx context.Context, courseID, examID int64) error {
	return m.record("registerParticipantsForExam")
}

func (m *MockAdmin) PrepareExam(ctx context.Context, courseID, examID int64) error {
	return m.record("prepareExam")
}

func (m *MockAdmin) CancelQueuedBuildJobs(ctx context.Context) error {
	return m.record("cancelQueuedBuildJobs")
}

func (m *MockAdmin) CancelRunningBuildJobs(ctx context.Context) error {
	return m.record("cancelRunningBuildJobs")
}

func (m *MockAdmin) GetBuildQueueSize(ctx context.Context, courseID int64) (int, error) {
	if err := m.record("getBuildQueueSize"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.BuildQueueSizes) == 0 {
		return 0, nil
	}
	size := m.BuildQueueSizes[0]
	if len(m.BuildQueueSizes) > 1 {
		m.BuildQueueSizes = m.BuildQueueSizes[1:]
	}
	return size, nil
}

// MockParticipant is an in-memory lms.ParticipantActions implementation.
// Each phase returns one sample with a phase-appropriate category.
type MockParticipant struct {
	User string

	// SampleDuration is the duration reported on every sample.
	SampleDuration time.Duration

	// FailOn maps a phase name (e.g. "participateInExam") to the error
	// that phase should return. Failing phases still return their sample.
	FailOn map[string]error

	mu    sync.Mutex
	Calls []string
}

var _ lms.ParticipantActions = (*MockParticipant)(nil)

func (m *MockParticipant) Username() string { return m.User }

func (m *MockParticipant) phase(name string, categories ...lms.RequestCategory) ([]lms.RequestSample, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, name)
	err := m.FailOn[name]
	m.mu.Unlock()

	samples := make([]lms.RequestSample, len(categories))
	for i, category := range categories {
		samples[i] = lms.RequestSample{
			Timestamp: time.Now(),
			Duration:  m.SampleDuration,
			Category:  category,
		}
	}
	return samples, err
}

func (m *MockParticipant) Login(ctx context.Context) ([]lms.RequestSample, error) {
	return m.phase("login", lms.CategoryAuthentication)
}

func (m *MockParticipant) PerformStartupCalls(ctx context.Context) ([]lms.RequestSample, error) {
	return m.phase("performStartupCalls", lms.CategoryMisc)
}

func (m *MockParticipant) BeginExamParticipation(ctx context.Context, courseID, examID, sideExerciseID int64) ([]lms.RequestSample, error) {
	return m.phase("beginExamParticipation", lms.CategoryGetStudentExam, lms.CategoryStartStudentExam)
}

func (m *MockParticipant) ParticipateInExam(ctx context.Context, courseID, examID int64) ([]lms.RequestSample, error) {
	return m.phase("participateInExam", lms.CategorySubmitExercise)
}

func (m *MockParticipant) SubmitAndEndExam(ctx context.Context, courseID, examID int64) ([]lms.RequestSample, error) {
	return m.phase("submitAndEndExam", lms.CategorySubmitStudentExam)
}

// MockHTTPHandler is a mock HTTP handler for testing API clients.
type MockHTTPHandler struct {
	mu            sync.Mutex
	responses     map[string][]*MockResponse
	requests      []*MockRequest
	defaultStatus int
	delay         time.Duration
}

// MockResponse represents a mock HTTP response.
type MockResponse struct {
	Status int
	Body   any
	Header map[string]string
}

// MockRequest represents a captured HTTP request.
type MockRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
	At     time.Time
}

// NewMockHTTPHandler creates a new mock HTTP handler.
func NewMockHTTPHandler() *MockHTTPHandler {
	return &MockHTTPHandler{
		responses:     make(map[string][]*MockResponse),
		defaultStatus: http.StatusOK,
	}
}

// ServeHTTP implements http.Handler.
func (m *MockHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Capture request
	body, _ := io.ReadAll(r.Body)
	req := &MockRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
		At:     time.Now(),
	}
	m.requests = append(m.requests, req)

	// Apply delay if set
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	// Get response for this path
	key := r.Method + ":" + r.URL.Path
	responses, ok := m.responses[key]
	if !ok || len(responses) == 0 {
		w.WriteHeader(m.defaultStatus)
		return
	}

	// Get next response in round-robin fashion
	resp := responses[0]
	if len(responses) > 1 {
		m.responses[key] = responses[1:]
	}

	// Set headers
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}

	// Write status
	if resp.Status != 0 {
		w.WriteHeader(resp.Status)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	// Write body
	if resp.Body != nil {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		_ = enc.Encode(resp.Body)
	}
}

// AddResponse adds a mock response for a given method and path.
func (m *MockHTTPHandler) AddResponse(method, path string, status int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := method + ":" + path
	m.responses[key] = append(m.responses[key], &MockResponse{
		Status: status,
		Body:   body,
	})
}

// AddResponseWithHeaders adds a mock response with custom headers.
func (m *MockHTTPHandler) AddResponseWithHeaders(method, path string, status int, body any, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := method + ":" + path
	m.responses[key] = append(m.responses[key], &MockResponse{
		Status: status,
		Body:   body,
		Header: headers,
	})
}

// SetDelay sets an artificial delay for all responses.
func (m *MockHTTPHandler) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetRequests returns all captured requests.
func (m *MockHTTPHandler) GetRequests() []*MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.requests
}

// ClearRequests clears all captured requests.
func (m *MockHTTPHandler) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = nil
}

// NewTestServer creates a test HTTP server with the mock handler.
func (m *MockHTTPHandler) NewTestServer(t interface {
	Cleanup(func())
}) *httptest.Server {
	srv := httptest.NewServer(m)
	if t, ok := t.(interface{ Cleanup(func()) }); ok {
		t.Cleanup(srv.Close)
	}
	return srv
}

// Reset clears all responses and requests.
func (m *MockHTTPHandler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses = make(map[string][]*MockResponse)
	m.requests = nil
}
