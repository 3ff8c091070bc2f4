// Package storage provides object storage for user supplied files.
//
// Two Uploader implementations are available: S3Uploader for S3 compatible
// backends (AWS, MinIO) and FileSystemUploader for local development.
//
//	uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
//		Region: "us-east-1",
//		Bucket: "taskhub-attachments",
//	})
//	obj, err := uploader.Upload(ctx, storage.ObjectKey("attachments/42", "plan.pdf"), "application/pdf", file, header.Size)
//
// Relational data lives in the postgres subpackage.
package storage
