package main

import (
	"context"

	"github.com/AlecAivazis/survey/v2"
)

// surveyPrompter implements loginmachine.Prompter and inputrecorder-fed
// module configuration prompts with AlecAivazis/survey/v2, the one place
// this binary touches a terminal directly (Design Note 9).
type surveyPrompter struct{}

func (surveyPrompter) ReadLine(_ context.Context, prompt string) (string, error) {
	var answer string
	if err := survey.AskOne(&survey.Input{Message: prompt}, &answer); err != nil {
		return "", err
	}
	return answer, nil
}

func (surveyPrompter) Choose(_ context.Context, prompt string, options []string) (int, error) {
	var answer string
	q := &survey.Select{Message: prompt, Options: options}
	if err := survey.AskOne(q, &answer); err != nil {
		return 0, err
	}
	for i, opt := range options {
		if opt == answer {
			return i, nil
		}
	}
	return 0, nil
}
