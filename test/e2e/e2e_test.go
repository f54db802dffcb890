//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	pollTimeout    = 3 * time.Minute
)

var (
	baseURL     string
	authorToken string
	takerToken  string
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("JWT_SECRET must match the server under test")
		os.Exit(1)
	}

	var err error
	if authorToken, err = mint(secret, service.RoleAuthor); err == nil {
		takerToken, err = mint(secret, service.RoleTaker)
	}
	if err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func mint(secret string, role service.Role) (string, error) {
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func TestE2EFlow(t *testing.T) {
	var (
		jobID     string
		exam      model.ExamDetail
		attemptID string
	)

	// Step 1: Upload source material
	t.Run("Upload", func(t *testing.T) {
		text := strings.Repeat("The mitochondrion is the site of aerobic respiration and ATP synthesis. ", 80)
		resp, err := upload("/uploads", "Cell Biology.pdf", "application/pdf", []byte(text), authorToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		var body struct {
			Data struct {
				Job model.UploadJob `json:"job"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Job.Status != model.JobStatusPending {
			t.Fatalf("status = %s", body.Data.Job.Status)
		}
		jobID = body.Data.Job.ID.String()
	})

	// Step 1b: Non-PDF is rejected
	t.Run("UploadRejectsDocx", func(t *testing.T) {
		resp, err := upload("/uploads", "notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK"), authorToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnsupportedMediaType {
			t.Errorf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	// Step 2: Trigger generation
	t.Run("Generate", func(t *testing.T) {
		reqBody := model.GenerateExamRequest{
			Subject:              "Biology",
			Difficulty:           "medium",
			DesiredQuestionCount: 4,
			TotalMarks:           20,
		}
		resp, err := post("/uploads/"+jobID+"/generate", reqBody, authorToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	// Step 3: Poll until terminal
	t.Run("PollJob", func(t *testing.T) {
		deadline := time.Now().Add(pollTimeout)
		for time.Now().Before(deadline) {
			job := getJob(t, jobID)
			switch job.Status {
			case model.JobStatusCompleted:
				resp, err := get("/exams/"+job.ExamID.String(), authorToken)
				if err != nil {
					t.Fatalf("request failed: %v", err)
				}
				var body struct {
					Data struct {
						Exam model.ExamDetail `json:"exam"`
					} `json:"data"`
				}
				decodeJSON(t, resp, &body)
				resp.Body.Close()
				exam = body.Data.Exam
				return
			case model.JobStatusError:
				t.Fatalf("job failed: %s", *job.ErrorReason)
			}
			time.Sleep(2 * time.Second)
		}
		t.Fatal("job did not finish in time")
	})

	// Step 4: Check the exam
	t.Run("ExamShape", func(t *testing.T) {
		if exam.TotalMarks != 20 || len(exam.Questions) != 4 {
			t.Fatalf("exam: %d marks, %d questions", exam.TotalMarks, len(exam.Questions))
		}
		sum := 0
		for _, q := range exam.Questions {
			sum += q.Marks
			if len(q.Options) != model.OptionCount {
				t.Errorf("question %d has %d options", q.Position, len(q.Options))
			}
		}
		if sum != 20 {
			t.Errorf("marks sum = %d", sum)
		}
	})

	// Step 5: Publish
	t.Run("Publish", func(t *testing.T) {
		resp, err := post("/exams/"+exam.ID.String()+"/publish", nil, authorToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	// Step 6: Taker starts an attempt
	t.Run("StartAttempt", func(t *testing.T) {
		resp, err := post("/exams/"+exam.ID.String()+"/attempts", nil, takerToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		raw := readBody(resp)
		if strings.Contains(raw, "correct_option_index") {
			t.Error("attempt payload leaks correct answers")
		}
		var body struct {
			Data struct {
				Attempt model.AttemptView `json:"attempt"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		attemptID = body.Data.Attempt.ID.String()
	})

	// Step 7: Answer the first question correctly
	t.Run("Answer", func(t *testing.T) {
		q := exam.Questions[0]
		resp, err := put("/attempts/"+attemptID+"/answers", map[string]any{
			"question_id":  q.ID,
			"option_index": q.CorrectOptionIndex,
		}, takerToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	// Step 8: Submit twice, same result
	t.Run("SubmitIdempotent", func(t *testing.T) {
		var scores []int
		for i := 0; i < 2; i++ {
			resp, err := post("/attempts/"+attemptID+"/submit", nil, takerToken)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			var body struct {
				Data struct {
					Result model.SubmitResult `json:"result"`
				} `json:"data"`
			}
			decodeJSON(t, resp, &body)
			resp.Body.Close()
			scores = append(scores, body.Data.Result.Score)
		}
		if scores[0] != exam.Questions[0].Marks || scores[1] != scores[0] {
			t.Errorf("scores = %v, want %d twice", scores, exam.Questions[0].Marks)
		}
	})

	// Step 9: Another author cannot see the exam
	t.Run("ForeignOwner", func(t *testing.T) {
		resp, err := get("/exams/"+exam.ID.String(), takerToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusNotFound {
			t.Errorf("status %d", resp.StatusCode)
		}
	})
}

func getJob(t *testing.T, id string) model.UploadJob {
	t.Helper()
	resp, err := get("/uploads/"+id, authorToken)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
	}
	var body struct {
		Data struct {
			Job model.UploadJob `json:"job"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &body)
	return body.Data.Job
}

func upload(path, filename, contentType string, data []byte, token string) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return do(http.MethodPost, path, &buf, mw.FormDataContentType(), token)
}

func post(path string, body interface{}, token string) (*http.Response, error) {
	return sendJSON(http.MethodPost, path, body, token)
}

func put(path string, body interface{}, token string) (*http.Response, error) {
	return sendJSON(http.MethodPut, path, body, token)
}

func get(path string, token string) (*http.Response, error) {
	return do(http.MethodGet, path, nil, "", token)
}

func sendJSON(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}
	return do(method, path, bodyReader, "application/json", token)
}

func do(method, path string, body io.Reader, contentType, token string) (*http.Response, error) {
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
