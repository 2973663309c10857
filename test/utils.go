package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"studioapi/config"
	"studioapi/models"
	"studioapi/services"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const JWTSecret = "test-secret"

const FakePassword = "Password1"

// PNGImage is the smallest header http.DetectContentType accepts as PNG.
var PNGImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

func Config(uploadDir string) *config.Config {
	return &config.Config{
		Env:           "test",
		JWTSecret:     JWTSecret,
		TokenTTL:      time.Hour,
		BcryptCost:    4,
		StorageDriver: config.StorageLocal,
		UploadDir:     uploadDir,
		MaxFileSize:   10 * 1024 * 1024,
		Processor:     config.ProcessorSimulated,
		CORSOrigins:   []string{"*"},
		RateLimit:     1000,
	}
}

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk uint) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userPk), 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(JWTSecret))
	if err != nil {
		log.Fatalf("Error when signing user token for %d. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk uint, param interface{}) *http.Request {
	req := NewJSONRequest(method, target, param)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", GenerateUserToken(userPk)))
	return req
}

// NewMultipartAuthRequest builds a generation form. A nil image omits the
// image part entirely.
func NewMultipartAuthRequest(target string, userPk uint, fields map[string]string, fileName string, image []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if image != nil {
		part, _ := writer.CreateFormFile("image", fileName)
		part.Write(image)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", GenerateUserToken(userPk)))
	return req
}

func FakeUser(db *gorm.DB, email string) *models.UserAccount {
	if email == "" {
		email = "email@example.com"
	}
	hash, err := services.HashPassword(FakePassword, 4)
	if err != nil {
		log.Fatal(err)
	}
	user := &models.UserAccount{
		Name:     "OurName",
		Email:    email,
		Password: hash,
		LastIp:   "123.122.122.122",
	}
	db.Create(&user)
	return user
}

// ScriptedProcessor answers with the queued errors first and succeeds
// afterwards, echoing the input image.
type ScriptedProcessor struct {
	mu     sync.Mutex
	Errors []error
	Calls  int
}

func (p *ScriptedProcessor) Process(ctx context.Context, job services.ProcessJob) (*services.ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if len(p.Errors) > 0 {
		err := p.Errors[0]
		p.Errors = p.Errors[1:]
		return nil, err
	}
	return &services.ProcessResult{ImageKey: job.ImageKey}, nil
}

func (p *ScriptedProcessor) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls
}
