package backup

import (
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manager snapshots the table files into encrypted, compressed backups.
type Manager struct {
	dataDir       string
	backupDir     string
	encryptionKey []byte
	retentionDays int
}

// NewManager creates a new backup manager
func NewManager(dataDir, backupDir, encryptionKey string, retentionDays int) (*Manager, error) {
	// Derive encryption key
	keyHash := sha256.Sum256([]byte(encryptionKey))

	// Ensure backup directory exists with secure permissions
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &Manager{
		dataDir:       dataDir,
		backupDir:     backupDir,
		encryptionKey: keyHash[:],
		retentionDays: retentionDays,
	}, nil
}

// CreateBackup snapshots every table file into a timestamped directory,
// each file gzip-compressed and AES-256-GCM encrypted, with a SHA-256
// checksum alongside.
func (m *Manager) CreateBackup() (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	snapshotDir := filepath.Join(m.backupDir, "backup_"+timestamp)

	if err := os.MkdirAll(snapshotDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to read data directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		srcPath := filepath.Join(m.dataDir, entry.Name())
		dstPath := filepath.Join(snapshotDir, entry.Name()+".enc.gz")

		if err := m.encryptAndCompressFile(srcPath, dstPath); err != nil {
			os.RemoveAll(snapshotDir)
			return "", fmt.Errorf("failed to back up %s: %w", entry.Name(), err)
		}

		if err := m.createChecksumFile(dstPath); err != nil {
			os.RemoveAll(snapshotDir)
			return "", fmt.Errorf("failed to create checksum for %s: %w", entry.Name(), err)
		}

		count++
	}

	fmt.Printf("[Backup] Created %s (%d table files)\n", snapshotDir, count)
	return snapshotDir, nil
}

// encryptAndCompressFile gzips then encrypts a file
func (m *Manager) encryptAndCompressFile(srcPath, dstPath string) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	// Create AES cipher
	block, err := aes.NewCipher(m.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	// Generate nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Encrypt data
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	// Create destination file with compression
	dstFile, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	gzWriter := gzip.NewWriter(dstFile)
	defer gzWriter.Close()

	if _, err := gzWriter.Write(ciphertext); err != nil {
		return fmt.Errorf("failed to write compressed data: %w", err)
	}

	return nil
}

// createChecksumFile creates SHA-256 checksum file
func (m *Manager) createChecksumFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(data)
	checksumPath := filePath + ".sha256"

	return os.WriteFile(checksumPath, []byte(fmt.Sprintf("%x", hash)), 0600)
}

// VerifyBackup verifies backup file integrity against its checksum
func (m *Manager) VerifyBackup(backupPath string) error {
	checksumPath := backupPath + ".sha256"

	// Read stored checksum
	storedChecksum, err := os.ReadFile(checksumPath)
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}

	// Calculate current checksum
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	hash := sha256.Sum256(data)
	currentChecksum := fmt.Sprintf("%x", hash)

	if currentChecksum != string(storedChecksum) {
		return fmt.Errorf("checksum mismatch: backup file may be corrupted")
	}

	return nil
}

// RestoreFile verifies, decrypts and decompresses one backed-up table file
// into dstPath.
func (m *Manager) RestoreFile(backupPath, dstPath string) error {
	if err := m.VerifyBackup(backupPath); err != nil {
		return err
	}

	f, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open compressed stream: %w", err)
	}
	defer gzReader.Close()

	ciphertext, err := io.ReadAll(gzReader)
	if err != nil {
		return fmt.Errorf("failed to read compressed data: %w", err)
	}

	block, err := aes.NewCipher(m.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return fmt.Errorf("backup file too short")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt backup: %w", err)
	}

	return os.WriteFile(dstPath, plaintext, 0600)
}

// CleanOldBackups removes old backups based on retention policy
func (m *Manager) CleanOldBackups() error {
	cutoffTime := time.Now().AddDate(0, 0, -m.retentionDays)

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	deletedCount := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup_") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		// Delete old backups
		if info.ModTime().Before(cutoffTime) {
			dirPath := filepath.Join(m.backupDir, entry.Name())
			if err := os.RemoveAll(dirPath); err != nil {
				fmt.Printf("[Backup] Warning: failed to delete %s: %v\n", dirPath, err)
				continue
			}
			deletedCount++
		}
	}

	if deletedCount > 0 {
		fmt.Printf("[Backup] Cleaned %d old backup snapshots\n", deletedCount)
	}

	return nil
}

// StartAutomatedBackups starts automated backup scheduler
func (m *Manager) StartAutomatedBackups(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Printf("[Backup] Automated backups started (interval: %v)\n", interval)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("[Backup] Stopping automated backups")
			return
		case <-ticker.C:
			fmt.Println("[Backup] Starting scheduled backup...")
			if _, err := m.CreateBackup(); err != nil {
				fmt.Printf("[Backup] Scheduled backup failed: %v\n", err)
			}

			// Clean old backups
			if err := m.CleanOldBackups(); err != nil {
				fmt.Printf("[Backup] Cleanup failed: %v\n", err)
			}
		}
	}
}
