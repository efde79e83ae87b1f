package repositories

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/sqlite"
	"log/slog"
)

type UserRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewUserRepository(db *sqlite.Database, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger.With(slog.String("source", "UserRepository")),
	}
}

// Upsert stores the user and its credentials.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	var (
		tx  *sql.Tx
		err error
	)
	if tx, err = r.db.ReadWrite.BeginTx(ctx, nil); err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer rollback(ctx, r.logger, tx)

	stmt := `INSERT INTO users (id, display_name)
VALUES (:id, :display_name)
ON CONFLICT (id) DO UPDATE SET display_name = :display_name`
	if _, err = tx.ExecContext(ctx, stmt, sql.Named("id", user.ID),
		sql.Named("display_name", user.DisplayName)); err != nil {
		return errors.Wrap(err, "upsert user", slog.String("user_id", hex.EncodeToString(user.ID)))
	}
	for i := range user.Credentials {
		if err = upsertCredential(ctx, tx, user.ID, &user.Credentials[i]); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// UpsertCredential stores a credential of an existing user, updating the sign count and flags of a known one.
func (r *UserRepository) UpsertCredential(ctx context.Context, userID []byte, credential *webauthn.Credential) error {
	var (
		tx  *sql.Tx
		err error
	)
	if tx, err = r.db.ReadWrite.BeginTx(ctx, nil); err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer rollback(ctx, r.logger, tx)
	if err = upsertCredential(ctx, tx, userID, credential); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func upsertCredential(ctx context.Context, tx *sql.Tx, userID []byte, credential *webauthn.Credential) error {
	stmt := `INSERT INTO credentials (id,
                         user_id,
                         public_key,
                         attestation_type,
                         transport,
                         flag_user_present,
                         flag_user_verified,
                         flag_backup_eligible,
                         flag_backup_state,
                         authenticator_aaguid,
                         authenticator_sign_count,
                         authenticator_clone_warning,
                         authenticator_attachment)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET attestation_type            = excluded.attestation_type,
                               transport                   = excluded.transport,
                               flag_user_present           = excluded.flag_user_present,
                               flag_user_verified          = excluded.flag_user_verified,
                               flag_backup_eligible        = excluded.flag_backup_eligible,
                               flag_backup_state           = excluded.flag_backup_state,
                               authenticator_aaguid        = excluded.authenticator_aaguid,
                               authenticator_sign_count    = excluded.authenticator_sign_count,
                               authenticator_clone_warning = excluded.authenticator_clone_warning,
                               authenticator_attachment    = excluded.authenticator_attachment`
	transport, err := json.Marshal(credential.Transport)
	if err != nil {
		return errors.Wrap(err, "JSON encode transport")
	}
	aaguid := credential.Authenticator.AAGUID
	if aaguid == nil {
		aaguid = []byte{}
	}
	if _, err = tx.ExecContext(ctx, stmt,
		credential.ID,
		userID,
		credential.PublicKey,
		credential.AttestationType,
		string(transport),
		credential.Flags.UserPresent,
		credential.Flags.UserVerified,
		credential.Flags.BackupEligible,
		credential.Flags.BackupState,
		aaguid,
		int64(credential.Authenticator.SignCount),
		credential.Authenticator.CloneWarning,
		string(credential.Authenticator.Attachment),
	); err != nil {
		return errors.Wrap(err, "upsert credential",
			slog.String("user_id", hex.EncodeToString(userID)),
			slog.String("credential_id", hex.EncodeToString(credential.ID)))
	}
	return nil
}

// Get returns the user with its credentials or [ErrNotFound].
func (r *UserRepository) Get(ctx context.Context, id []byte) (*models.User, error) {
	var (
		err  error
		rows *sql.Rows
		user = models.User{ID: nil, DisplayName: "", Credentials: []webauthn.Credential{}}
	)
	stmt := `SELECT id, display_name FROM users WHERE id = ?`
	if err = r.db.ReadOnly.QueryRowContext(ctx, stmt, id).Scan(&user.ID, &user.DisplayName); err != nil {
		return nil, notFoundOr(err, "read user", slog.String("user_id", hex.EncodeToString(id)))
	}

	stmt = `SELECT id,
       public_key,
       attestation_type,
       transport,
       flag_user_present,
       flag_user_verified,
       flag_backup_eligible,
       flag_backup_state,
       authenticator_aaguid,
       authenticator_sign_count,
       authenticator_clone_warning,
       authenticator_attachment
FROM credentials
WHERE user_id = ?
ORDER BY created`
	if rows, err = r.db.ReadOnly.QueryContext(ctx, stmt, id); err != nil {
		return nil, errors.Wrap(err, "query credentials")
	}
	defer closeRows(ctx, r.logger, rows)
	for rows.Next() {
		var (
			credential webauthn.Credential
			transport  string
		)
		if err = rows.Scan(
			&credential.ID,
			&credential.PublicKey,
			&credential.AttestationType,
			&transport,
			&credential.Flags.UserPresent,
			&credential.Flags.UserVerified,
			&credential.Flags.BackupEligible,
			&credential.Flags.BackupState,
			&credential.Authenticator.AAGUID,
			&credential.Authenticator.SignCount,
			&credential.Authenticator.CloneWarning,
			&credential.Authenticator.Attachment,
		); err != nil {
			return nil, errors.Wrap(err, "scan credential")
		}
		if err = json.Unmarshal([]byte(transport), &credential.Transport); err != nil {
			return nil, errors.Wrap(err, "JSON decode transport")
		}
		user.Credentials = append(user.Credentials, credential)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate credentials")
	}
	return &user, nil
}

func (r *UserRepository) Exists(ctx context.Context, id []byte) (bool, error) {
	var exists bool
	if err := r.db.ReadOnly.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).
		Scan(&exists); err != nil {
		return false, errors.Wrap(err, "query user exists")
	}
	return exists, nil
}
