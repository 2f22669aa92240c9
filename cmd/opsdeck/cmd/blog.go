package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/api"
)

// blogCmd groups the blog actions
var blogCmd = &cobra.Command{
	Use:   "blog",
	Short: "Manage blog posts",
}

var blogDraftCmd = &cobra.Command{
	Use:   "draft <slug>",
	Short: "Create a new unpublished blog post",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlogDraft,
}

var blogUpdateCmd = &cobra.Command{
	Use:   "update <slug>",
	Short: "Update an existing blog post",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlogUpdate,
}

var blogPublishCmd = &cobra.Command{
	Use:   "publish <slug>",
	Short: "Publish a blog post",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, slug string) error {
		return client.PublishPost(ctx, slug)
	}),
}

var (
	postTitle    string
	postBodyFile string
)

func init() {
	rootCmd.AddCommand(blogCmd)
	blogCmd.AddCommand(blogDraftCmd)
	blogCmd.AddCommand(blogUpdateCmd)
	blogCmd.AddCommand(blogPublishCmd)

	for _, c := range []*cobra.Command{blogDraftCmd, blogUpdateCmd} {
		c.Flags().StringVarP(&postTitle, "title", "t", "", "post title")
		c.Flags().StringVarP(&postBodyFile, "body-file", "f", "", "file containing the post body (markdown)")
	}
}

func runBlogDraft(cmd *cobra.Command, args []string) error {
	return submitPost(args[0], func(ctx context.Context, client *api.Client, draft api.PostDraft) error {
		return client.CreateDraft(ctx, draft)
	})
}

func runBlogUpdate(cmd *cobra.Command, args []string) error {
	return submitPost(args[0], func(ctx context.Context, client *api.Client, draft api.PostDraft) error {
		return client.UpdatePost(ctx, draft.Slug, draft)
	})
}

func submitPost(slug string, send func(context.Context, *api.Client, api.PostDraft) error) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	var body string
	if postBodyFile != "" {
		data, err := os.ReadFile(postBodyFile)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
		body = string(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return send(ctx, client, api.PostDraft{
		Slug:  slug,
		Title: postTitle,
		Body:  body,
	})
}
