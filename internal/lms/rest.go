package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 2 * time.Minute
	prepareStatusInterval = time.Second
	maxErrorBodyBytes     = 4 << 10
)

// Client is a thin authenticated HTTP session against the target REST API.
// Admin and participant adapters share it; it is not safe for concurrent
// use by multiple participants (each participant owns its own Client).
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	token      string
	logger     *log.Logger
}

// NewClient builds a session for the given account against baseURL.
func NewClient(baseURL, username, password string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		username:   username,
		password:   password,
		logger:     logger,
	}
}

// authenticate performs the login request and stores the bearer token.
func (c *Client) authenticate(ctx context.Context) (RequestSample, error) {
	body := map[string]any{
		"username":   c.username,
		"password":   c.password,
		"rememberMe": true,
	}
	var out struct {
		IDToken string `json:"id_token"`
	}
	sample, err := c.timed(ctx, CategoryAuthentication, http.MethodPost, "/api/core/public/authenticate", body, &out)
	if err != nil {
		return sample, fmt.Errorf("authenticate %s: %w", c.username, err)
	}
	c.token = out.IDToken
	return sample, nil
}

// timed issues a request and reports it as a sample for the given category.
func (c *Client) timed(ctx context.Context, category RequestCategory, method, path string, body, out any) (RequestSample, error) {
	start := time.Now()
	err := c.do(ctx, method, path, body, out)
	return Sample(category, start, time.Since(start)), err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}

// RestAdmin drives the administrative REST API of the target system.
type RestAdmin struct {
	client *Client
	logger *log.Logger

	// pollInterval overrides the preparation poll interval in tests.
	pollInterval time.Duration
}

var _ AdminActions = (*RestAdmin)(nil)

// NewRestAdmin builds an admin adapter for the given account.
func NewRestAdmin(baseURL, username, password string, logger *log.Logger) *RestAdmin {
	if logger == nil {
		logger = log.Default()
	}
	return &RestAdmin{
		client:       NewClient(baseURL, username, password, logger),
		logger:       logger,
		pollInterval: prepareStatusInterval,
	}
}

type courseDTO struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type examDTO struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	VisibleDate time.Time `json:"visibleDate"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
}

func (a *RestAdmin) Login(ctx context.Context) error {
	_, err := a.client.authenticate(ctx)
	return err
}

func (a *RestAdmin) CreateCourse(ctx context.Context) (Course, error) {
	suffix := strconv.FormatInt(time.Now().UnixMilli(), 10)
	body := map[string]any{
		"title":     "Benchmarking Course " + suffix,
		"shortName": "bench" + suffix,
	}
	var out courseDTO
	if err := a.client.do(ctx, http.MethodPost, "/api/core/admin/courses", body, &out); err != nil {
		return Course{}, fmt.Errorf("create course: %w", err)
	}
	return Course{ID: out.ID, Title: out.Title}, nil
}

func (a *RestAdmin) GetCourse(ctx context.Context, courseID int64) (Course, error) {
	var out courseDTO
	path := "/api/core/courses/" + strconv.FormatInt(courseID, 10)
	if err := a.client.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Course{}, fmt.Errorf("get course %d: %w", courseID, err)
	}
	return Course{ID: out.ID, Title: out.Title}, nil
}

func (a *RestAdmin) DeleteCourse(ctx context.Context, courseID int64) error {
	path := "/api/core/admin/courses/" + strconv.FormatInt(courseID, 10)
	if err := a.client.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete course %d: %w", courseID, err)
	}
	return nil
}

func (a *RestAdmin) CreateExam(ctx context.Context, course Course) (Exam, error) {
	// Dates are pushed far enough into the future that no student can enter
	// the exam before preparation rewrites the start date.
	now := time.Now()
	body := map[string]any{
		"title":                   "Benchmarking Exam",
		"visibleDate":             now.Add(1 * time.Hour),
		"startDate":               now.Add(2 * time.Hour),
		"endDate":                 now.Add(5 * time.Hour),
		"numberOfExercisesInExam": 4,
		"examMaxPoints":           20,
	}
	var out examDTO
	path := examPath(course.ID, 0)
	if err := a.client.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return Exam{}, fmt.Errorf("create exam: %w", err)
	}
	return Exam{
		ID:          out.ID,
		CourseID:    course.ID,
		Title:       out.Title,
		VisibleDate: out.VisibleDate,
		StartDate:   out.StartDate,
		EndDate:     out.EndDate,
	}, nil
}

func (a *RestAdmin) CreateExamExercises(ctx context.Context, courseID int64, exam Exam) error {
	groups := []struct {
		title string
		kind  ExerciseKind
	}{
		{"Text Group", ExerciseText},
		{"Modeling Group", ExerciseModeling},
		{"Quiz Group", ExerciseQuiz},
		{"Programming Group", ExerciseProgramming},
	}
	base := examPath(courseID, exam.ID)
	for _, group := range groups {
		var created struct {
			ID int64 `json:"id"`
		}
		if err := a.client.do(ctx, http.MethodPost, base+"/exercise-groups", map[string]any{
			"title":       group.title,
			"isMandatory": true,
		}, &created); err != nil {
			return fmt.Errorf("create exercise group %q: %w", group.title, err)
		}
		if err := a.createExerciseInGroup(ctx, created.ID, group.kind); err != nil {
			return err
		}
	}
	return nil
}

func (a *RestAdmin) createExerciseInGroup(ctx context.Context, groupID int64, kind ExerciseKind) error {
	var path string
	switch kind {
	case ExerciseText:
		path = "/api/text/text-exercises"
	case ExerciseModeling:
		path = "/api/modeling/modeling-exercises"
	case ExerciseQuiz:
		path = "/api/quiz/quiz-exercises"
	case ExerciseProgramming:
		path = "/api/programming/programming-exercises/setup"
	case ExerciseFileUpload:
		path = "/api/fileupload/file-upload-exercises"
	default:
		return fmt.Errorf("unknown exercise kind %q", kind)
	}
	body := map[string]any{
		"title":         string(kind) + " Exercise",
		"maxPoints":     5,
		"exerciseGroup": map[string]any{"id": groupID},
	}
	if err := a.client.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("create %s exercise: %w", strings.ToLower(string(kind)), err)
	}
	return nil
}

func (a *RestAdmin) DeleteExam(ctx context.Context, courseID, examID int64) error {
	if err := a.client.do(ctx, http.MethodDelete, examPath(courseID, examID), nil, nil); err != nil {
		return fmt.Errorf("delete exam %d: %w", examID, err)
	}
	return nil
}

func (a *RestAdmin) CreateCourseExercise(ctx context.Context, course Course) (Exercise, error) {
	body := map[string]any{
		"title":     "Benchmarking Side Exercise",
		"shortName": "benchside",
		"course":    map[string]any{"id": course.ID},
		"maxPoints": 5,
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := a.client.do(ctx, http.MethodPost, "/api/programming/programming-exercises/setup", body, &out); err != nil {
		return Exercise{}, fmt.Errorf("create course exercise: %w", err)
	}
	return Exercise{ID: out.ID, Kind: ExerciseProgramming}, nil
}

func (a *RestAdmin) RegisterParticipants(ctx context.Context, courseID int64, usernames []string) error {
	path := "/api/core/courses/" + strconv.FormatInt(courseID, 10) + "/students"
	for _, username := range usernames {
		if err := a.client.do(ctx, http.MethodPost, path+"/"+username, nil, nil); err != nil {
			// Registration failures for individual students are skipped so a
			// single missing account does not abort the whole setup.
			a.logger.Printf("lms: register student %s for course %d: %v", username, courseID, err)
		}
	}
	return nil
}

func (a *RestAdmin) RegisterParticipantsForExam(ctx context.Context, courseID, examID int64) error {
	path := examPath(courseID, examID) + "/register-course-students"
	if err := a.client.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("register students for exam %d: %w", examID, err)
	}
	return nil
}

// PrepareExam drives the target through exam preparation: the exam dates are
// pushed into the future, per-student exams are generated, exercise
// repositories are provisioned, and the preparation status endpoint is
// polled until all students are handled. Finally the start date is rewritten
// to now so participation can begin immediately.
func (a *RestAdmin) PrepareExam(ctx context.Context, courseID, examID int64) error {
	base := examPath(courseID, examID)

	var exam examDTO
	if err := a.client.do(ctx, http.MethodGet, base, nil, &exam); err != nil {
		return fmt.Errorf("fetch exam %d: %w", examID, err)
	}

	now := time.Now()
	exam.VisibleDate = now.Add(1 * time.Hour)
	exam.StartDate = now.Add(2 * time.Hour)
	exam.EndDate = now.Add(5 * time.Hour)
	if err := a.client.do(ctx, http.MethodPut, base, exam, &exam); err != nil {
		return fmt.Errorf("update exam %d dates: %w", examID, err)
	}

	if err := a.client.do(ctx, http.MethodPost, base+"/generate-student-exams", nil, nil); err != nil {
		return fmt.Errorf("generate student exams: %w", err)
	}
	if err := a.client.do(ctx, http.MethodPost, base+"/student-exams/start-exercises", nil, nil); err != nil {
		return fmt.Errorf("start exercise preparation: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollInterval):
		}
		var status struct {
			Finished int `json:"finished"`
			Failed   int `json:"failed"`
			Overall  int `json:"overall"`
		}
		if err := a.client.do(ctx, http.MethodGet, base+"/student-exams/start-exercises/status", nil, &status); err != nil {
			return fmt.Errorf("fetch preparation status: %w", err)
		}
		a.logger.Printf("lms: preparation complete for %d, failed for %d, overall %d", status.Finished, status.Failed, status.Overall)
		prep := PreparationStatus{Finished: status.Finished, Failed: status.Failed, Overall: status.Overall}
		if prep.Done() {
			if prep.Failed > 0 {
				a.logger.Printf("lms: preparation failed for %d students", prep.Failed)
			}
			break
		}
	}

	exam.StartDate = time.Now()
	if err := a.client.do(ctx, http.MethodPut, base, exam, nil); err != nil {
		return fmt.Errorf("rewrite exam %d start date: %w", examID, err)
	}
	return nil
}

func (a *RestAdmin) CancelQueuedBuildJobs(ctx context.Context) error {
	if err := a.client.do(ctx, http.MethodDelete, "/api/core/admin/cancel-all-queued-jobs", nil, nil); err != nil {
		return fmt.Errorf("cancel queued build jobs: %w", err)
	}
	return nil
}

func (a *RestAdmin) CancelRunningBuildJobs(ctx context.Context) error {
	if err := a.client.do(ctx, http.MethodDelete, "/api/core/admin/cancel-all-running-jobs", nil, nil); err != nil {
		return fmt.Errorf("cancel running build jobs: %w", err)
	}
	return nil
}

func (a *RestAdmin) GetBuildQueueSize(ctx context.Context, courseID int64) (int, error) {
	var jobs []json.RawMessage
	path := "/api/core/admin/courses/" + strconv.FormatInt(courseID, 10) + "/queued-jobs"
	if err := a.client.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return 0, fmt.Errorf("get build queue size: %w", err)
	}
	return len(jobs), nil
}

func examPath(courseID, examID int64) string {
	base := "/api/exam/courses/" + strconv.FormatInt(courseID, 10) + "/exams"
	if examID == 0 {
		return base
	}
	return base + "/" + strconv.FormatInt(examID, 10)
}

// RestStudent drives one simulated participant session.
type RestStudent struct {
	client    *Client
	logger    *log.Logger
	mechanism AuthMechanism
	git       GitTransport

	commitsFrom int
	commitsTo   int

	// studentExam is populated by BeginExamParticipation and consumed by
	// the later phases of the same participant.
	studentExamID int64
	exercises     []Exercise
}

var _ ParticipantActions = (*RestStudent)(nil)

// NewRestStudent builds a participant adapter. The git transport is only
// used for programming exercises with an offline IDE mechanism.
func NewRestStudent(baseURL, username, password string, mechanism AuthMechanism, commitsFrom, commitsTo int, git GitTransport, logger *log.Logger) *RestStudent {
	if logger == nil {
		logger = log.Default()
	}
	return &RestStudent{
		client:      NewClient(baseURL, username, password, logger),
		logger:      logger,
		mechanism:   mechanism,
		git:         git,
		commitsFrom: commitsFrom,
		commitsTo:   commitsTo,
	}
}

func (s *RestStudent) Username() string { return s.client.username }

// Mechanism returns the participant's repository auth mechanism.
func (s *RestStudent) Mechanism() AuthMechanism { return s.mechanism }

func (s *RestStudent) Login(ctx context.Context) ([]RequestSample, error) {
	sample, err := s.client.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return []RequestSample{sample}, nil
}

func (s *RestStudent) PerformStartupCalls(ctx context.Context) ([]RequestSample, error) {
	paths := []string{
		"/api/core/public/account",
		"/api/core/notifications",
		"/api/core/courses/for-dashboard",
		"/api/communication/settings",
	}
	samples := make([]RequestSample, 0, len(paths))
	for _, path := range paths {
		sample, err := s.client.timed(ctx, CategoryMisc, http.MethodGet, path, nil, nil)
		if err != nil {
			return samples, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

type studentExamDTO struct {
	ID        int64 `json:"id"`
	Exercises []struct {
		ID             int64  `json:"id"`
		Type           string `json:"type"`
		Participations []struct {
			ID            int64  `json:"id"`
			RepositoryURI string `json:"repositoryUri"`
		} `json:"studentParticipations"`
	} `json:"exercises"`
}

func (s *RestStudent) BeginExamParticipation(ctx context.Context, courseID, examID, sideExerciseID int64) ([]RequestSample, error) {
	var samples []RequestSample
	base := examPath(courseID, examID)

	// Navigating into the exam loads the student exam.
	var studentExam studentExamDTO
	sample, err := s.client.timed(ctx, CategoryGetStudentExam, http.MethodGet, base+"/own-student-exam", nil, &studentExam)
	samples = append(samples, sample)
	if err != nil {
		return samples, err
	}
	s.studentExamID = studentExam.ID
	s.exercises = s.exercises[:0]
	for _, raw := range studentExam.Exercises {
		exercise := Exercise{ID: raw.ID, Kind: exerciseKindFromWire(raw.Type)}
		if len(raw.Participations) > 0 {
			exercise.ParticipationID = raw.Participations[0].ID
			exercise.RepositoryURI = raw.Participations[0].RepositoryURI
		}
		s.exercises = append(s.exercises, exercise)
	}

	// Side exercise traffic mimics students peeking at course content.
	if sideExerciseID != 0 {
		path := "/api/exercise/exercises/" + strconv.FormatInt(sideExerciseID, 10) + "/details"
		sample, err = s.client.timed(ctx, CategoryMisc, http.MethodGet, path, nil, nil)
		samples = append(samples, sample)
		if err != nil {
			return samples, err
		}
	}

	startPath := base + "/student-exams/" + strconv.FormatInt(s.studentExamID, 10) + "/conduction"
	sample, err = s.client.timed(ctx, CategoryStartStudentExam, http.MethodGet, startPath, nil, nil)
	samples = append(samples, sample)
	if err != nil {
		return samples, err
	}
	return samples, nil
}

func (s *RestStudent) ParticipateInExam(ctx context.Context, courseID, examID int64) ([]RequestSample, error) {
	var samples []RequestSample
	for _, exercise := range s.exercises {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		switch exercise.Kind {
		case ExerciseModeling:
			sample, err := s.submitExercise(ctx, "/api/modeling/exercises/"+strconv.FormatInt(exercise.ID, 10)+"/modeling-submissions", map[string]any{
				"model":           classDiagramModel(),
				"explanationText": "The model describes ...",
			})
			samples = append(samples, sample)
			if err != nil {
				return samples, err
			}
		case ExerciseText:
			sample, err := s.submitExercise(ctx, "/api/text/exercises/"+strconv.FormatInt(exercise.ID, 10)+"/text-submissions", map[string]any{
				"text":     loremParagraphs(2 + rand.Intn(3)),
				"language": "ENGLISH",
			})
			samples = append(samples, sample)
			if err != nil {
				return samples, err
			}
		case ExerciseQuiz:
			sample, err := s.submitExercise(ctx, "/api/quiz/exercises/"+strconv.FormatInt(exercise.ID, 10)+"/submissions/exam", map[string]any{
				"submittedAnswers": []any{},
			})
			samples = append(samples, sample)
			if err != nil {
				return samples, err
			}
		case ExerciseProgramming:
			programmingSamples, err := s.solveProgrammingExercise(ctx, exercise)
			samples = append(samples, programmingSamples...)
			if err != nil {
				// Programming exercise trouble is participant-local noise;
				// the remaining exercises are still attempted.
				s.logger.Printf("lms: programming exercise for %s: %v", s.Username(), err)
			}
		case ExerciseFileUpload:
			sample, err := s.submitExercise(ctx, "/api/fileupload/exercises/"+strconv.FormatInt(exercise.ID, 10)+"/file-upload-submissions", map[string]any{
				"fileName": "submission.txt",
			})
			samples = append(samples, sample)
			if err != nil {
				return samples, err
			}
		}
	}
	return samples, nil
}

func (s *RestStudent) submitExercise(ctx context.Context, path string, body any) (RequestSample, error) {
	return s.client.timed(ctx, CategorySubmitExercise, http.MethodPut, path, body, nil)
}

func (s *RestStudent) solveProgrammingExercise(ctx context.Context, exercise Exercise) ([]RequestSample, error) {
	var samples []RequestSample

	if s.mechanism == AuthOnlineIDE {
		return s.solveProgrammingOnline(ctx, exercise)
	}

	cloneCategory, pushCategory := cloneAndPushCategories(s.mechanism)
	cloneSample, workdir, err := s.git.Clone(ctx, exercise.RepositoryURI, cloneCategory)
	samples = append(samples, cloneSample)
	if err != nil {
		return samples, fmt.Errorf("clone repository: %w", err)
	}

	rounds := s.commitRounds()
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		if err := s.git.CommitChange(ctx, workdir, rand.Intn(2) == 0); err != nil {
			return samples, fmt.Errorf("commit: %w", err)
		}
		pushSample, err := s.git.Push(ctx, workdir, pushCategory)
		samples = append(samples, pushSample)
		if err != nil {
			return samples, fmt.Errorf("push: %w", err)
		}
	}
	return samples, nil
}

func (s *RestStudent) solveProgrammingOnline(ctx context.Context, exercise Exercise) ([]RequestSample, error) {
	var samples []RequestSample
	participation := strconv.FormatInt(exercise.ParticipationID, 10)

	sample, err := s.client.timed(ctx, CategoryRepositoryInfo, http.MethodGet, "/api/programming/repository/"+participation, nil, nil)
	samples = append(samples, sample)
	if err != nil {
		return samples, err
	}
	sample, err = s.client.timed(ctx, CategoryRepositoryFiles, http.MethodGet, "/api/programming/repository/"+participation+"/files", nil, nil)
	samples = append(samples, sample)
	if err != nil {
		return samples, err
	}

	rounds := s.commitRounds()
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		sample, err = s.client.timed(ctx, CategorySubmitExercise, http.MethodPut, "/api/programming/repository/"+participation+"/files?commit=yes", []map[string]any{
			{"fileName": "src/Main.java", "fileContent": loremParagraphs(1)},
		}, nil)
		samples = append(samples, sample)
		if err != nil {
			return samples, err
		}
		sample, err = s.client.timed(ctx, CategoryProgrammingResult, http.MethodGet, "/api/programming/participations/"+participation+"/latest-pending-submission", nil, nil)
		samples = append(samples, sample)
		if err != nil {
			return samples, err
		}
	}
	return samples, nil
}

func (s *RestStudent) SubmitAndEndExam(ctx context.Context, courseID, examID int64) ([]RequestSample, error) {
	path := examPath(courseID, examID) + "/student-exams/submit"
	sample, err := s.client.timed(ctx, CategorySubmitStudentExam, http.MethodPost, path, map[string]any{
		"id": s.studentExamID,
	}, nil)
	if err != nil {
		return []RequestSample{sample}, err
	}
	return []RequestSample{sample}, nil
}

// commitRounds picks a random commit+push count from the configured range.
func (s *RestStudent) commitRounds() int {
	if s.commitsTo <= s.commitsFrom {
		return s.commitsFrom
	}
	return s.commitsFrom + rand.Intn(s.commitsTo-s.commitsFrom)
}

func cloneAndPushCategories(mechanism AuthMechanism) (RequestCategory, RequestCategory) {
	switch mechanism {
	case AuthSSH:
		return CategoryCloneSSH, CategoryPushSSH
	case AuthToken:
		return CategoryCloneToken, CategoryPushToken
	default:
		return CategoryClonePassword, CategoryPushPassword
	}
}

func exerciseKindFromWire(wire string) ExerciseKind {
	switch strings.ToLower(wire) {
	case "modeling":
		return ExerciseModeling
	case "text":
		return ExerciseText
	case "quiz":
		return ExerciseQuiz
	case "programming":
		return ExerciseProgramming
	case "file-upload", "fileupload":
		return ExerciseFileUpload
	default:
		return ExerciseText
	}
}

func classDiagramModel() string {
	if rand.Intn(2) == 0 {
		return `{"version":"3.0.0","type":"ClassDiagram","elements":[]}`
	}
	return `{"version":"3.0.0","type":"ClassDiagram","elements":[],"relationships":[]}`
}

var loremWords = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing",
	"elit", "sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore",
}

func loremParagraphs(n int) string {
	var sb strings.Builder
	for p := 0; p < n; p++ {
		if p > 0 {
			sb.WriteString("\n\n")
		}
		for w := 0; w < 40; w++ {
			if w > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(loremWords[rand.Intn(len(loremWords))])
		}
		sb.WriteByte('.')
	}
	return sb.String()
}
