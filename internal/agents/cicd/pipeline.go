// Package cicd implements the CI/CD phase: it detects the project runtime from
// the request text and renders a GitLab CI pipeline for it.
package cicd

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// ArtifactKey is the file name of the generated pipeline.
const ArtifactKey = ".gitlab-ci.yml"

// DefaultDeployBranch is the only branch the deploy job runs on by default.
const DefaultDeployBranch = "main"

// Runtime describes how to build one kind of project.
type Runtime struct {
	Keyword     string
	ProjectName string
	BuildImage  string
	Install     string
	Build       string
	Test        string
}

// runtimes is checked in order; the first keyword found wins.
var runtimes = []Runtime{
	{
		Keyword:     "node",
		ProjectName: "node-app",
		BuildImage:  "node:18",
		Install:     "npm install",
		Build:       "npm run build",
		Test:        "npm test",
	},
	{
		Keyword:     "python",
		ProjectName: "python-app",
		BuildImage:  "python:3.11",
		Install:     "pip install -r requirements.txt",
		Build:       "python -m compileall .",
		Test:        "pytest",
	},
	{
		Keyword:     "java",
		ProjectName: "java-app",
		BuildImage:  "openjdk:17",
		Install:     "./mvnw dependency:resolve",
		Build:       "./mvnw package -DskipTests",
		Test:        "./mvnw test",
	},
}

var fallbackRuntime = Runtime{
	ProjectName: "my-app",
	BuildImage:  "node:18",
	Install:     "npm install",
	Build:       "npm run build",
	Test:        "npm test",
}

// DetectRuntime picks the runtime for request by case-insensitive keyword
// match.
func DetectRuntime(request string) Runtime {
	lower := strings.ToLower(request)
	for _, rt := range runtimes {
		if strings.Contains(lower, rt.Keyword) {
			return rt
		}
	}
	return fallbackRuntime
}

var pipelineTemplate = template.Must(template.New("gitlab-ci").Parse(`# Auto-generated GitLab CI configuration
stages:
  - build
  - test
  - deploy

build_job:
  stage: build
  image: {{.Image}}
  script:
    - echo "Building {{.ProjectName}}..."
    - {{.Install}}
    - {{.Build}}

test_job:
  stage: test
  image: {{.Image}}
  script:
    - echo "Running tests for {{.ProjectName}}..."
    - {{.Test}}

deploy_job:
  stage: deploy
  image: {{.Image}}
  script:
    - echo "Deploying {{.ProjectName}}..."
    - echo "Deployment script would go here"
  only:
    - {{.DeployBranch}}
`))

type pipelineData struct {
	ProjectName  string
	Image        string
	Install      string
	Build        string
	Test         string
	DeployBranch string
}

// pipelineDoc is the subset of the GitLab CI schema checked after rendering.
type pipelineDoc struct {
	Stages []string `yaml:"stages"`
	Build  *job     `yaml:"build_job"`
	Test   *job     `yaml:"test_job"`
	Deploy *job     `yaml:"deploy_job"`
}

type job struct {
	Stage  string   `yaml:"stage"`
	Image  string   `yaml:"image"`
	Script []string `yaml:"script"`
	Only   []string `yaml:"only"`
}

// Render produces the pipeline YAML for rt and checks that it parses.
func Render(rt Runtime, deployBranch string) (string, error) {
	if deployBranch == "" {
		deployBranch = DefaultDeployBranch
	}

	var buf bytes.Buffer
	err := pipelineTemplate.Execute(&buf, pipelineData{
		ProjectName:  rt.ProjectName,
		Image:        rt.BuildImage,
		Install:      rt.Install,
		Build:        rt.Build,
		Test:         rt.Test,
		DeployBranch: deployBranch,
	})
	if err != nil {
		return "", fmt.Errorf("rendering pipeline: %w", err)
	}

	if err := checkPipeline(buf.Bytes()); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func checkPipeline(data []byte) error {
	var doc pipelineDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("generated pipeline is not valid YAML: %w", err)
	}
	if !slices.Equal(doc.Stages, []string{"build", "test", "deploy"}) {
		return fmt.Errorf("generated pipeline has unexpected stages %v", doc.Stages)
	}
	for name, j := range map[string]*job{"build_job": doc.Build, "test_job": doc.Test, "deploy_job": doc.Deploy} {
		if j == nil || j.Image == "" || len(j.Script) == 0 {
			return fmt.Errorf("generated pipeline has incomplete job %s", name)
		}
	}
	return nil
}
