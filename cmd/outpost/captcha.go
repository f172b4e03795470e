package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/sirupsen/logrus"

	"github.com/outpostctl/outpost/internal/config"
)

// captchaAPIURLEnv names the third-party decaptcha endpoint, mirroring the
// original's DNS-resolved "api address" (core/dns_resolver.py). Left unset,
// the API stage is skipped and resolution falls straight to the terminal
// prompt.
const captchaAPIURLEnv = "OUTPOST_CAPTCHA_API_URL"

// cliCaptchaSolver implements loginmachine.CaptchaSolver with the same
// two-stage resolver chain as core/captcha_handler.py: try the third-party
// decaptcha API first, then fall back to a manual terminal prompt.
type cliCaptchaSolver struct {
	log    *logrus.Entry
	client *http.Client
}

func newCLICaptchaSolver(log *logrus.Entry) *cliCaptchaSolver {
	return &cliCaptchaSolver{log: log, client: &http.Client{}}
}

func (c *cliCaptchaSolver) Solve(ctx context.Context, textImage, iconsImage []byte) (int, error) {
	if answer, err := c.solveViaAPI(ctx, textImage, iconsImage); err == nil {
		return answer, nil
	} else {
		c.log.WithError(err).Warn("captcha API resolver failed, falling back to terminal prompt")
	}
	return c.solveViaTerminal(textImage, iconsImage)
}

func (c *cliCaptchaSolver) solveViaAPI(ctx context.Context, textImage, iconsImage []byte) (int, error) {
	apiURL := config.GetEnv(captchaAPIURLEnv, "")
	if apiURL == "" {
		return 0, fmt.Errorf("no captcha API configured")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := attachFile(writer, "text_image", "text.png", textImage); err != nil {
		return 0, err
	}
	if err := attachFile(writer, "icons_image", "icons.png", iconsImage); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	endpoint := strings.TrimRight(apiURL, "/") + "/v1/decaptcha/lobby"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("captcha API returned status %d: %s", resp.StatusCode, string(raw))
	}

	answer, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("captcha API returned non-integer: %s", string(raw))
	}
	if answer < 0 || answer > 3 {
		return 0, fmt.Errorf("captcha API returned out-of-range answer: %d", answer)
	}

	c.log.WithField("answer", answer).Info("captcha API solved the challenge")
	return answer, nil
}

func attachFile(writer *multipart.Writer, field, filename string, data []byte) error {
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

// solveViaTerminal saves both images to the OS temp dir and asks the user to
// pick 1-4, since a terminal cannot render the images directly — the same
// limitation core/captcha_handler.py works around with a printed notice.
func (c *cliCaptchaSolver) solveViaTerminal(textImage, iconsImage []byte) (int, error) {
	textPath, err := saveTempImage("outpost-captcha-text-*.png", textImage)
	if err != nil {
		return 0, err
	}
	iconsPath, err := saveTempImage("outpost-captcha-icons-*.png", iconsImage)
	if err != nil {
		return 0, err
	}

	fmt.Println()
	fmt.Println("  A captcha challenge was presented during login.")
	fmt.Println("  The images have been saved to disk; open them to see the challenge:")
	fmt.Printf("    instruction: %s\n", textPath)
	fmt.Printf("    icons:       %s\n", iconsPath)
	fmt.Println()

	options := []string{"1", "2", "3", "4"}
	var picked string
	q := &survey.Select{Message: "Which icon matches the instruction image?", Options: options}
	if err := survey.AskOne(q, &picked); err != nil {
		return 0, fmt.Errorf("cannot prompt for captcha in non-interactive mode: %w", err)
	}

	choice, err := strconv.Atoi(picked)
	if err != nil {
		return 0, fmt.Errorf("invalid captcha choice %q", picked)
	}
	return choice - 1, nil
}

func saveTempImage(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}
