package echoapi

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frogedu/backend/core/exam"
	"github.com/frogedu/backend/core/user"
	testutil "github.com/frogedu/backend/tests"
)

func Test_examApi_createSession(t *testing.T) {
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher31", "teacher31@test.vn", "LePass123", user.TeacherRoles, true)
	intruder := testutil.CreateUser(t, usrRepo, "Intruder", "teacher32", "teacher32@test.vn", "LePass123", user.TeacherRoles, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student31", "student31@test.vn", "LePass123", user.StudentRoles, true)
	c := testutil.CreateClassRoom(t, classRoomRepo, "Math 7A", "7", teacher.ID, 30, true)

	examID := uuid.NewString()
	start := time.Now().UTC().Format(time.RFC3339)
	end := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{"classroom_id": %q, "exam_id": %q, "start_time": %q, "end_time": %q, "is_retryable": true, "retry_times": 1}`,
		c.ID, examID, start, end))

	t.Run("student cannot schedule", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions", getToken(t, student), body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusForbidden, rec)
	})

	t.Run("non-owner cannot schedule", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions", getToken(t, intruder), body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusForbidden, rec)
	})

	t.Run("end before start", func(t *testing.T) {
		bad := []byte(fmt.Sprintf(`{"classroom_id": %q, "exam_id": %q, "start_time": %q, "end_time": %q}`,
			c.ID, examID, end, start))
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions", getToken(t, teacher), bad)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("owner schedules", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions", getToken(t, teacher), body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusCreated, rec)

		var s ExamSessionResponse
		decodeBody(t, rec, &s)
		if s.CreatedBy != teacher.ID || !s.IsActive || !s.IsRetryable || s.RetryTimes != 1 {
			t.Errorf("created session = %+v", s)
		}
		if !s.IsCurrentlyActive || s.IsUpcoming || s.HasEnded {
			t.Errorf("derived state = active %v, upcoming %v, ended %v; want active only",
				s.IsCurrentlyActive, s.IsUpcoming, s.HasEnded)
		}
	})

	t.Run("with a matrix", func(t *testing.T) {
		matrixBody := []byte(fmt.Sprintf(`{
			"classroom_id": %q, "exam_id": %q, "start_time": %q, "end_time": %q,
			"matrix": {
				"name": "Midterm blueprint",
				"subject_id": %q,
				"grade": 2,
				"topics": [{"topic_id": %q, "cognitive_level": "knowledge", "quantity": 5}]
			}
		}`, c.ID, uuid.NewString(), start, end, uuid.NewString(), uuid.NewString()))
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions", getToken(t, teacher), matrixBody)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusCreated, rec)

		var s ExamSessionResponse
		decodeBody(t, rec, &s)
		if s.Matrix == nil || s.Matrix.TotalQuestions() != 5 {
			t.Errorf("created session matrix = %+v", s.Matrix)
		}
	})

	t.Run("listing is scoped to the creator", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/exam-sessions", getToken(t, intruder))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var sessions []ExamSessionResponse
		decodeBody(t, rec, &sessions)
		if len(sessions) != 0 {
			t.Errorf("intruder sees %d sessions, want 0", len(sessions))
		}
	})
}

type examFixtureData struct {
	teacher   user.User
	student   user.User
	sessionID string
	examID    string
	choiceQID string // 1 point, correct answer choiceAID
	choiceAID string
	blankQID  string // 2 points, expects "mitochondria"
}

func examFixture(t *testing.T) examFixtureData {
	t.Helper()

	f := examFixtureData{
		examID:    uuid.NewString(),
		choiceQID: uuid.NewString(),
		choiceAID: uuid.NewString(),
		blankQID:  uuid.NewString(),
	}
	f.teacher = testutil.CreateUser(t, usrRepo, "Teacher", "teacher"+uuid.NewString()[:6], uuid.NewString()[:8]+"@test.vn", "LePass123", user.TeacherRoles, true)
	f.student = testutil.CreateUser(t, usrRepo, "Student", "student"+uuid.NewString()[:6], uuid.NewString()[:8]+"@test.vn", "LePass123", user.StudentRoles, true)
	c := testutil.CreateClassRoom(t, classRoomRepo, "Math 7A", "7", f.teacher.ID, 30, true)
	testutil.EnrollStudent(t, classRoomRepo, c.ID, f.student.ID)

	examClient.Add(exam.Exam{
		ID: f.examID,
		Questions: []exam.Question{
			{ID: f.choiceQID, Type: exam.QuestionMultipleChoice, Points: 1, Answers: []exam.Answer{
				{ID: f.choiceAID, IsCorrect: true}, {ID: uuid.NewString()},
			}},
			{ID: f.blankQID, Type: exam.QuestionFillInTheBlank, Points: 2, Answers: []exam.Answer{
				{ID: uuid.NewString(), Content: "mitochondria", IsCorrect: true},
			}},
		},
	})

	s := testutil.CreateSession(t, examRepo, c.ID, f.examID, f.teacher.ID,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	f.sessionID = s.ID
	return f
}

func Test_examApi_attemptFlow(t *testing.T) {
	f := examFixture(t)
	sessionID := f.sessionID
	studentToken := getToken(t, f.student)
	teacherToken := getToken(t, f.teacher)

	var attempt AttemptResponse

	t.Run("student starts an attempt", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions/"+sessionID+"/attempts", studentToken)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusCreated, rec)
		decodeBody(t, rec, &attempt)
		if attempt.AttemptNumber != 1 || attempt.Status != exam.AttemptInProgress {
			t.Errorf("attempt = %+v", attempt)
		}
		if attempt.ScorePercentage != 0 {
			t.Errorf("ScorePercentage = %v, want 0 for a fresh attempt", attempt.ScorePercentage)
		}
	})

	t.Run("second attempt is rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions/"+sessionID+"/attempts", studentToken)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("teacher cannot start an attempt", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/exam-sessions/"+sessionID+"/attempts", teacherToken)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusForbidden, rec)
	})

	t.Run("answer without a question id", func(t *testing.T) {
		body := []byte(`{"selected_answer_ids": ["x"]}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/attempts/"+attempt.ID+"/answers", studentToken, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("save an answer", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"question_id": %q, "selected_answer_ids": [%q]}`, f.choiceQID, f.choiceAID))
		req, rec := newAuthRequest(http.MethodPut, "/v1/attempts/"+attempt.ID+"/answers", studentToken, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)
	})

	t.Run("submit grades the attempt", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"answers": [{"question_id": %q, "answer_text": "Mitochondria"}]}`, f.blankQID))
		req, rec := newAuthRequest(http.MethodPost, "/v1/attempts/"+attempt.ID+"/submit", studentToken, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var submitted AttemptResponse
		decodeBody(t, rec, &submitted)
		if submitted.Status != exam.AttemptSubmitted {
			t.Errorf("Status = %s, want %s", submitted.Status, exam.AttemptSubmitted)
		}
		if submitted.Score != 3 || submitted.TotalPoints != 3 {
			t.Errorf("Score = %v/%v, want 3/3", submitted.Score, submitted.TotalPoints)
		}
		if submitted.ScorePercentage != 100 {
			t.Errorf("ScorePercentage = %v, want 100", submitted.ScorePercentage)
		}
	})

	t.Run("submitting twice fails", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attempts/"+attempt.ID+"/submit", studentToken, []byte(`{}`))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("teacher reads the results", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/exam-sessions/"+sessionID+"/results", teacherToken)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var results []exam.AttemptResult
		decodeBody(t, rec, &results)
		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		if results[0].StudentName != "Student" || results[0].ScorePercentage != 100 {
			t.Errorf("result = %+v", results[0])
		}
	})

	t.Run("unknown attempt", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attempts/"+uuid.NewString()+"/submit", studentToken, []byte(`{}`))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusNotFound, rec)
	})
}

func Test_examApi_timeOutAttempt(t *testing.T) {
	f := examFixture(t)

	att := testutil.CreateAttempt(t, examRepo, f.sessionID, f.student.ID, 1)

	t.Run("student cannot time out", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attempts/"+att.ID+"/timeout", getToken(t, f.student))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusForbidden, rec)
	})

	t.Run("teacher times out", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attempts/"+att.ID+"/timeout", getToken(t, f.teacher))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var timedOut AttemptResponse
		decodeBody(t, rec, &timedOut)
		if timedOut.Status != exam.AttemptTimedOut {
			t.Errorf("Status = %s, want %s", timedOut.Status, exam.AttemptTimedOut)
		}
	})
}

func Test_examApi_classRoomSessions(t *testing.T) {
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher41", "teacher41@test.vn", "LePass123", user.TeacherRoles, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student41", "student41@test.vn", "LePass123", user.StudentRoles, true)
	outsider := testutil.CreateUser(t, usrRepo, "Outsider", "student42", "student42@test.vn", "LePass123", user.StudentRoles, true)
	c := testutil.CreateClassRoom(t, classRoomRepo, "Math 7A", "7", teacher.ID, 30, true)
	testutil.EnrollStudent(t, classRoomRepo, c.ID, student.ID)

	examID := uuid.NewString()
	now := time.Now()
	// reschedule: two sessions for the same exam, the newest creation wins
	testutil.CreateSession(t, examRepo, c.ID, examID, teacher.ID, now.Add(-2*time.Hour), now.Add(-time.Hour),
		func(s *exam.ExamSession) { s.CreatedAt = now.Add(-time.Hour).UTC() })
	latest := testutil.CreateSession(t, examRepo, c.ID, examID, teacher.ID, now, now.Add(time.Hour))

	t.Run("student sees one session per exam", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classrooms/"+c.ID+"/exam-sessions", getToken(t, student))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var sessions []ExamSessionResponse
		decodeBody(t, rec, &sessions)
		if len(sessions) != 1 || sessions[0].ID != latest.ID {
			t.Errorf("sessions = %+v, want only %s", sessions, latest.ID)
		}
		if !sessions[0].IsCurrentlyActive || sessions[0].HasEnded {
			t.Errorf("derived state = active %v, ended %v; want the in-window session active",
				sessions[0].IsCurrentlyActive, sessions[0].HasEnded)
		}
	})

	t.Run("unenrolled student is rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classrooms/"+c.ID+"/exam-sessions", getToken(t, outsider))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("teacher sees the full history", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classrooms/"+c.ID+"/exam-sessions", getToken(t, teacher))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var sessions []ExamSessionResponse
		decodeBody(t, rec, &sessions)
		if len(sessions) != 2 {
			t.Fatalf("len(sessions) = %d, want 2", len(sessions))
		}
		var ended int
		for _, s := range sessions {
			if s.HasEnded {
				ended++
			}
		}
		if ended != 1 {
			t.Errorf("ended sessions = %d, want 1", ended)
		}
	})
}

func Test_examApi_updateSession(t *testing.T) {
	f := examFixture(t)
	sessionID := f.sessionID
	token := getToken(t, f.teacher)

	t.Run("pause the session", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/exam-sessions/"+sessionID, token, []byte(`{"is_active": false}`))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var s ExamSessionResponse
		decodeBody(t, rec, &s)
		if s.IsActive {
			t.Error("IsActive = true, want false")
		}
		if s.IsCurrentlyActive {
			t.Error("IsCurrentlyActive = true, want false for a paused session")
		}
		if s.UpdatedBy != f.teacher.ID {
			t.Errorf("UpdatedBy = %s, want %s", s.UpdatedBy, f.teacher.ID)
		}
	})

	t.Run("negative retry times", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/exam-sessions/"+sessionID, token, []byte(`{"retry_times": -1}`))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("delete the session", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/exam-sessions/"+sessionID, token)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusNoContent, rec)

		req, rec = newAuthRequest(http.MethodGet, "/v1/exam-sessions/"+sessionID, token)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusNotFound, rec)
	})
}
