package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/inspectdoc/internal/assets"
	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/imagebind"
	"github.com/dgallion1/inspectdoc/internal/numbering"
	"github.com/dgallion1/inspectdoc/internal/ops"
	"github.com/dgallion1/inspectdoc/internal/parser"
	"github.com/dgallion1/inspectdoc/internal/templates"
	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

func encodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <tree.json>",
		Short: "Render a tree as flat report text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec(cmd)
			if err != nil {
				return err
			}
			tree, err := readTree(args[0])
			if err != nil {
				return err
			}
			expand, _ := cmd.Flags().GetBool("expand")
			fmt.Fprint(cmd.OutOrStdout(), codec.Encode(tree, textcodec.EncodeOptions{ExpandTemplates: expand}))
			return nil
		},
	}
	cmd.Flags().Bool("expand", false, "Render template sections in full instead of as markers")
	return cmd
}

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <report.txt|->",
		Short: "Parse flat report text into a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec(cmd)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var existing *doctree.Tree
			if path, _ := cmd.Flags().GetString("existing"); path != "" {
				if existing, err = readTree(path); err != nil {
					return err
				}
			}
			dec := codec.Decode(string(data), existing)
			for _, a := range dec.Ambiguities {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", a)
			}
			return writeTree(cmd, dec.Tree)
		},
	}
	cmd.Flags().String("existing", "", "Tree JSON whose section ids should be kept where titles match")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a txt, md, html, docx or pdf file as a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			pdftotext, _ := cmd.Flags().GetBool("pdftotext")
			res, err := parser.ParseFile(f, args[0], parser.Options{Codec: codec, PDFFallbackPdftotext: pdftotext})
			if err != nil {
				return err
			}
			for _, a := range res.Ambiguities {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", a)
			}
			if asText, _ := cmd.Flags().GetBool("text"); asText {
				fmt.Fprint(cmd.OutOrStdout(), codec.Encode(res.Tree, textcodec.EncodeOptions{}))
				return nil
			}
			return writeTree(cmd, numbering.Renumber(res.Tree, numbering.Default()))
		},
	}
	cmd.Flags().Bool("text", false, "Print flat text instead of tree JSON")
	cmd.Flags().Bool("pdftotext", false, "Fall back to pdftotext when a PDF has no extractable text")
	return cmd
}

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <tree.json> <operations.json>",
		Short: "Apply a batch of edit operations to a tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadTemplates(cmd)
			if err != nil {
				return err
			}
			tree, err := readTree(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var batch ops.Batch
			if err := json.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("parse operations: %w", err)
			}
			next, inverse, err := ops.NewEngine(reg).Apply(tree, batch)
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("inverse"); path != "" {
				out, err := json.MarshalIndent(inverse, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, out, 0o644); err != nil {
					return err
				}
			}
			sep, _ := cmd.Flags().GetString("separator")
			s := numbering.Default()
			s.Separator = sep
			return writeTree(cmd, numbering.Renumber(next, s))
		},
	}
	cmd.Flags().String("inverse", "", "Write the inverse batch to this file")
	cmd.Flags().String("separator", ".", "Numbering separator")
	return cmd
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <report.txt|tree.json>",
		Short: "Resolve image anchors against an asset manifest",
		Long: `Resolve replaces every image anchor that has no matching asset with a
visible placeholder and prints the result. A .json argument is read as a
tree and encoded first. Unresolved anchors are listed on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec(cmd)
			if err != nil {
				return err
			}
			manifestPath, _ := cmd.Flags().GetString("manifest")
			manifest, err := assets.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			docID, _ := cmd.Flags().GetString("doc")
			list, err := manifest.ListImages(cmd.Context(), docID)
			if err != nil {
				return err
			}

			var text string
			if strings.HasSuffix(strings.ToLower(args[0]), ".json") {
				tree, err := readTree(args[0])
				if err != nil {
					return err
				}
				text = codec.Encode(tree, textcodec.EncodeOptions{ExpandTemplates: true})
			} else {
				data, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				text = string(data)
			}

			rendered, bindings := imagebind.NewBinder(nil).BindText(text, list)
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			missing := imagebind.Unresolved(bindings)
			for _, bd := range missing {
				fmt.Fprintf(cmd.ErrOrStderr(), "unresolved: %s\n", bd.Placeholder)
			}
			if strict, _ := cmd.Flags().GetBool("strict"); strict && len(missing) > 0 {
				return fmt.Errorf("%d unresolved image anchors", len(missing))
			}
			return nil
		},
	}
	cmd.Flags().String("manifest", "", "Asset manifest CSV (required)")
	cmd.Flags().String("doc", "", "Document id to select assets for")
	cmd.Flags().Bool("strict", false, "Fail when any anchor is unresolved")
	cmd.MarkFlagRequired("manifest")
	return cmd
}

func loadTemplates(cmd *cobra.Command) (*templates.Registry, error) {
	path, _ := cmd.Flags().GetString("templates")
	if path == "" {
		return templates.Default(), nil
	}
	return templates.Load(path)
}

func loadCodec(cmd *cobra.Command) (*textcodec.Codec, error) {
	reg, err := loadTemplates(cmd)
	if err != nil {
		return nil, err
	}
	return textcodec.New(reg), nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func readTree(path string) (*doctree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tree doctree.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse tree %s: %w", path, err)
	}
	tree.Normalize()
	return &tree, nil
}

func writeTree(cmd *cobra.Command, tree *doctree.Tree) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tree)
}
