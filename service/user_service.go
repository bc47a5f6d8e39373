package service

import (
	"errors"
	"log"
	"time"

	"threatlens/config"
	"threatlens/database"
	"threatlens/models"
	"threatlens/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct{}

func NewUserService() *UserService {
	return &UserService{}
}

// InitAdmin creates the default administrator account on first startup.
func (s *UserService) InitAdmin() error {
	ctx, cancel := timeoutCtx()
	defer cancel()

	cfg := config.GetConfig()
	collection := database.GetCollection(models.CollectionUsers)

	err := collection.FindOne(ctx, bson.M{"username": cfg.Admin.Username}).Err()
	if err == nil {
		return nil // already provisioned
	}
	if err != mongo.ErrNoDocuments {
		return err
	}

	password := cfg.Admin.Password
	if password == "" {
		password = "admin123"
		log.Println("Warning: admin password not configured, using default. Change it.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := models.User{
		ID:        primitive.NewObjectID(),
		Username:  cfg.Admin.Username,
		Password:  string(hash),
		Role:      models.RoleAdmin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err = collection.InsertOne(ctx, user)
	return err
}

// Login validates credentials and issues a JWT token.
func (s *UserService) Login(username, password string) (string, *models.User, error) {
	ctx, cancel := timeoutCtx()
	defer cancel()

	collection := database.GetCollection(models.CollectionUsers)

	var user models.User
	if err := collection.FindOne(ctx, bson.M{"username": username}).Decode(&user); err != nil {
		return "", nil, errors.New("invalid username or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, errors.New("invalid username or password")
	}

	token, err := utils.GenerateToken(user.ID.Hex(), user.Username, string(user.Role))
	if err != nil {
		return "", nil, errors.New("failed to generate token")
	}

	// best-effort login timestamp
	_, _ = collection.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{"last_login": time.Now()}},
	)

	return token, &user, nil
}

// ChangePassword updates a user's password after verifying the old one.
func (s *UserService) ChangePassword(userID, oldPassword, newPassword string) error {
	ctx, cancel := timeoutCtx()
	defer cancel()

	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return errors.New("invalid user id")
	}

	collection := database.GetCollection(models.CollectionUsers)

	var user models.User
	if err := collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&user); err != nil {
		return errors.New("user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return errors.New("old password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = collection.UpdateOne(ctx,
		bson.M{"_id": objID},
		bson.M{"$set": bson.M{"password": string(hash), "updated_at": time.Now()}},
	)
	return err
}
