package cucumber

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		// Generic HTTP steps
		ctx.Step(`^the path prefix is "([^"]*)"$`, s.theAPIPrefixIs)
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH) path "([^"]*)"$`, s.sendHTTPRequest)
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH) path "([^"]*)" with json body:$`, s.SendHTTPRequestWithJSONBody)

		// Multipart uploads
		ctx.Step(`^I set the "([^"]*)" form field to:$`, s.iSetTheFormFieldTo)
		ctx.Step(`^I POST path "([^"]*)" uploading "([^"]*)" with content:$`, s.iPostUploadingContent)
		ctx.Step(`^I POST path "([^"]*)" uploading the last binary response as "([^"]*)"$`, s.iPostUploadingLastResponse)

		// Binary downloads
		ctx.Step(`^I GET path "([^"]*)" expecting binary$`, s.iGetExpectingBinary)

		// Header setting
		ctx.Step(`^I set the "([^"]*)" header to "([^"]*)"$`, s.iSetTheHeaderTo)
	})
}

func (s *TestScenario) theAPIPrefixIs(prefix string) error {
	s.PathPrefix = prefix
	return nil
}

func (s *TestScenario) sendHTTPRequest(method, path string) error {
	return s.SendHTTPRequestWithJSONBody(method, path, nil)
}

func (s *TestScenario) SendHTTPRequestWithJSONBody(method, path string, jsonTxt *godog.DocString) (err error) {
	body := &bytes.Buffer{}
	contentType := ""
	if jsonTxt != nil {
		expanded, err := s.Expand(jsonTxt.Content)
		if err != nil {
			return err
		}
		body.WriteString(expanded)
		contentType = "application/json"
	}
	return s.doRequest(method, path, body, contentType)
}

// iSetTheFormFieldTo stores a form field that the next multipart upload
// includes alongside the file part.
func (s *TestScenario) iSetTheFormFieldTo(name string, value *godog.DocString) error {
	expanded, err := s.Expand(value.Content)
	if err != nil {
		return err
	}
	session := s.Session()
	if session.FormFields == nil {
		session.FormFields = map[string]string{}
	}
	session.FormFields[name] = expanded
	return nil
}

// iPostUploadingContent sends a multipart POST with the doc string as the
// "file" part, named filename, plus any pending form fields.
func (s *TestScenario) iPostUploadingContent(path, filename string, content *godog.DocString) error {
	expanded, err := s.Expand(content.Content)
	if err != nil {
		return err
	}
	return s.uploadMultipart(path, filename, []byte(expanded))
}

// iPostUploadingLastResponse re-uploads the previous response body, verbatim,
// as the "file" part of a multipart POST. Used to round-trip binary downloads.
func (s *TestScenario) iPostUploadingLastResponse(path, filename string) error {
	session := s.Session()
	if session.RespBytes == nil {
		return errors.New("no previous response body to upload")
	}
	data := make([]byte, len(session.RespBytes))
	copy(data, session.RespBytes)
	return s.uploadMultipart(path, filename, data)
}

func (s *TestScenario) uploadMultipart(path, filename string, data []byte) error {
	session := s.Session()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, value := range session.FormFields {
		if err := w.WriteField(name, value); err != nil {
			return err
		}
	}
	session.FormFields = nil

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return s.doRequest("POST", path, body, w.FormDataContentType())
}

func (s *TestScenario) iGetExpectingBinary(path string) error {
	session := s.Session()
	session.Header.Set("Accept", "*/*")
	return s.sendHTTPRequest("GET", path)
}

func (s *TestScenario) iSetTheHeaderTo(name, value string) error {
	expanded, err := s.Expand(value)
	if err != nil {
		return err
	}
	s.Session().Header.Set(name, expanded)
	return nil
}

func (s *TestScenario) doRequest(method, path string, body io.Reader, contentType string) (err error) {
	defer func() {
		switch t := recover().(type) {
		case string:
			err = errors.New(t)
		case error:
			err = t
		}
	}()

	session := s.Session()

	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}

	fullURL := ""
	expandedPathURL, err := url.Parse(expandedPath)
	if err == nil && expandedPathURL.Scheme != "" {
		fullURL = expandedPath
	} else {
		fullURL = s.Suite.APIURL + s.PathPrefix + expandedPath
	}

	// Reset response state
	if session.Resp != nil {
		_ = session.Resp.Body.Close()
	}
	session.Resp = nil
	session.RespBytes = nil
	session.respJSON = nil

	req, err := http.NewRequestWithContext(context.Background(), method, fullURL, body)
	if err != nil {
		return err
	}

	// Consume session headers on this request only.
	req.Header = session.Header
	session.Header = http.Header{}

	// The identity of the current test user rides on the X-User-ID header,
	// which the server honors in testing mode.
	if req.Header.Get("Authorization") == "" && req.Header.Get("X-API-Key") == "" &&
		session.TestUser != nil && session.TestUser.Subject != "" {
		req.Header.Set("X-User-ID", session.TestUser.Subject)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else if req.Header.Get("Content-Type") == "" && method != "GET" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	session.Resp = resp
	session.RespBytes, err = io.ReadAll(resp.Body)
	return err
}
