package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/uistream/cmd/uistream/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .uistream dir is picked up by the dotdir manager.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".uistream"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() { _ = os.Chdir(origDir) })
	})

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(execute("set", "assistant.assistant_id", "docs")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Set assistant.assistant_id = docs"))

			data, err := os.ReadFile(filepath.Join(tmpDir, ".uistream", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`assistant_id = "docs"`))
		})

		It("masks the api key", func() {
			Expect(execute("set", "assistant.api_key", "secret")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("secret"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "client.timeout")).To(HaveOccurred())
			Expect(execute("set")).To(HaveOccurred())
		})

		It("rejects invalid durations", func() {
			Expect(execute("set", "client.timeout", "soon")).To(HaveOccurred())
		})

		It("rejects unsupported eventstream providers", func() {
			Expect(execute("set", "eventstream.provider", "nats")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(execute("set", "client.timeout", "2m")).To(Succeed())
			out.Reset()

			Expect(execute("get", "client.timeout")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("2m"))
		})

		It("shows defaults for keys missing from the file", func() {
			Expect(execute("get", "assistant.endpoint")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("https://askai.algolia.com/chat"))
		})

		It("marks keys without a default as not set", func() {
			Expect(execute("get", "assistant.app_id")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(execute("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("mock.delay"))
			Expect(out.String()).To(ContainSubstring("eventstream.topic"))
		})

		It("lists set values and masks the api key", func() {
			Expect(execute("set", "assistant.api_key", "secret")).To(Succeed())
			Expect(execute("set", "eventstream.provider", "kafka")).To(Succeed())
			out.Reset()

			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`"kafka"`))
			Expect(out.String()).NotTo(ContainSubstring("secret"))
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).To(HaveOccurred())
		})
	})
})
