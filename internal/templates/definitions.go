package templates

// Definition is one curated catalog entry. Definitions are inert; they only
// become buildable once an operator copies one into a compiler.
type Definition struct {
	ID                 string
	Name               string
	Description        string
	Category           string
	Dockerfile         string
	DefaultRunCommand  []string
	Tags               []string
	Icon               string
	Author             string
	IsOfficial         bool
}

// Catalog is the curated set seeded at service start.
var Catalog = []Definition{
	{
		ID:          "python-3.12",
		Name:        "Python 3.12",
		Description: "Latest Python 3.12 runtime with pip package manager. Ideal for modern Python development and data science.",
		Category:    "language",
		Dockerfile: `FROM python:3.12-slim
WORKDIR /sandbox
RUN useradd -m -u 1000 sandbox && chown sandbox:sandbox /sandbox
USER sandbox
CMD ["python", "-"]`,
		DefaultRunCommand: []string{"python", "-"},
		Tags:              []string{"python", "python3", "scripting"},
		Icon:              "🐍",
		Author:            "yantra",
		IsOfficial:        true,
	},
	{
		ID:          "python-3.11-data",
		Name:        "Python 3.11 Data Science",
		Description: "Python 3.11 with numpy, pandas, and matplotlib pre-installed for data science workloads.",
		Category:    "language",
		Dockerfile: `FROM python:3.11-slim
WORKDIR /sandbox
RUN apt-get update && apt-get install -y --no-install-recommends \
    gcc g++ && \
    rm -rf /var/lib/apt/lists/*
RUN pip install --no-cache-dir numpy pandas matplotlib scipy
RUN useradd -m -u 1000 sandbox && chown sandbox:sandbox /sandbox
USER sandbox
CMD ["python", "-"]`,
		DefaultRunCommand: []string{"python", "-"},
		Tags:              []string{"python", "data-science", "numpy", "pandas"},
		Icon:              "📊",
		Author:            "yantra",
		IsOfficial:        true,
	},
	{
		ID:          "nodejs-20",
		Name:        "Node.js 20 LTS",
		Description: "Node.js 20 LTS with npm. Perfect for JavaScript server-side applications and scripts.",
		Category:    "language",
		Dockerfile: `FROM node:20-slim
WORKDIR /sandbox
RUN useradd -m -u 1000 sandbox && chown sandbox:sandbox /sandbox
USER sandbox
CMD ["node", "-"]`,
		DefaultRunCommand: []string{"node", "-"},
		Tags:              []string{"nodejs", "javascript", "node", "js"},
		Icon:              "🟢",
		Author:            "yantra",
		IsOfficial:        true,
	},
	{
		ID:          "nodejs-18",
		Name:        "Node.js 18 LTS",
		Description: "Node.js 18 LTS with npm. Stable long-term support version for production workloads.",
		Category:    "language",
		Dockerfile: `FROM node:18-slim
WORKDIR /sandbox
RUN useradd -m -u 1000 sandbox && chown sandbox:sandbox /sandbox
USER sandbox
CMD ["node", "-"]`,
		DefaultRunCommand: []string{"node", "-"},
		Tags:              []string{"nodejs", "javascript", "node", "js"},
		Icon:              "🟢",
		Author:            "yantra",
		IsOfficial:        true,
	},
	{
		ID:          "typescript-5",
		Name:        "TypeScript 5",
		Description: "TypeScript 5 with ts-node for direct TypeScript execution without pre-compilation.",
		Category:    "language",
		Dockerfile: `FROM node:20-slim
WORKDIR /sandbox
RUN npm install -g typescript ts-node
RUN useradd -m -u 1000 sandbox && chown sandbox:sandbox /sandbox
USER sandbox
CMD ["ts-node", "-e"]`,
		DefaultRunCommand: []string{"npx", "ts-node", "--transpile-only", "/dev/stdin"},
		Tags:              []string{"typescript", "ts", "nodejs"},
		Icon:              "🔷",
		Author:            "yantra",
		IsOfficial:        true,
	},
	{
		ID:          "go-1.22",
		Name:        "Go 1.22",
		Description: "Go 1.22 toolchain. Compiles and runs programs read from standard input.",
		Category:    "language",
		Dockerfile: `FROM golang:1.22-bookworm
WORKDIR /sandbox
RUN useradd -m -u 1000 sandbox && chown sandbox:sandbox /sandbox
USER sandbox
ENV GOCACHE=/tmp/go-cache GOMODCACHE=/tmp/go-mod CGO_ENABLED=0
CMD ["sh", "-c", "cat > /tmp/main.go && go run /tmp/main.go"]`,
		DefaultRunCommand: []string{"sh", "-c", "cat > /tmp/main.go && go run /tmp/main.go"},
		Tags:              []string{"go", "golang", "compiled"},
		Icon:              "🐹",
		Author:            "yantra",
		IsOfficial:        true,
	},
	{
		ID:          "bash-5",
		Name:        "Bash 5",
		Description: "Debian-based Bash 5 shell environment with coreutils.",
		Category:    "shell",
		Dockerfile: `FROM debian:bookworm-slim
WORKDIR /sandbox
RUN useradd -m -u 1000 sandbox && chown sandbox:sandbox /sandbox
USER sandbox
CMD ["bash", "-s"]`,
		DefaultRunCommand: []string{"bash", "-s"},
		Tags:              []string{"bash", "shell", "scripting"},
		Icon:              "💻",
		Author:            "yantra",
		IsOfficial:        true,
	},
}
