package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"superfan/pkg/cache"
	"superfan/pkg/config"
	"superfan/pkg/database"
	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/pkg/models"
	"superfan/pkg/s3"
	"superfan/pkg/status"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New()
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		panic(err)
	}

	s3Client, err := s3.NewClient(cfg)
	if err != nil {
		log.Error("Failed to create S3 client: %v", err)
		panic(err)
	}

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("Failed to connect to redis: %v", err)
		panic(err)
	}

	if err := seedDatabase(db, s3Client, redisClient, log); err != nil {
		log.Error("Failed to seed database: %v", err)
		panic(err)
	}

	log.Info("Database seeded successfully!")
}

func seedDatabase(db *gorm.DB, s3Client *s3.Client, redisClient *redis.Client, log *logger.Logger) error {
	pointLedger := ledger.New(db, log)

	if _, err := seedUser(db, log, "admin@superfan.test", "club_admin", "password123", models.RoleAdmin); err != nil {
		return err
	}

	fans := []struct {
		email    string
		username string
		points   int64
	}{
		{"alice@superfan.test", "alice_vinyl", 1800},
		{"bob@superfan.test", "bob_encore", 650},
		{"charlie@superfan.test", "charlie_frontrow", 4200},
		{"diana@superfan.test", "diana_dayone", 300},
		{"eve@superfan.test", "eve_acoustic", 950},
	}

	clubs := []struct {
		name   string
		slug   string
		artist string
	}{
		{"The Midnight Owls Club", "midnight-owls", "The Midnight Owls"},
		{"Neon Static Collective", "neon-static", "Neon Static"},
	}

	clubIDs := make([]string, 0, len(clubs))
	for _, clubData := range clubs {
		club, err := seedClub(db, log, clubData.name, clubData.slug, clubData.artist)
		if err != nil {
			return err
		}
		clubIDs = append(clubIDs, club.ID)
	}

	for i, fanData := range fans {
		user, err := seedUser(db, log, fanData.email, fanData.username, "password123", models.RoleMember)
		if err != nil {
			return err
		}

		// Everyone joins the first club; every other fan joins the second too.
		memberClubs := clubIDs[:1]
		if i%2 == 0 {
			memberClubs = clubIDs
		}

		for _, clubID := range memberClubs {
			if err := seedMembership(db, log, user.ID, clubID); err != nil {
				return err
			}

			wallet, err := pointLedger.GetOrCreateWallet(context.Background(), user.ID, clubID)
			if err != nil {
				return fmt.Errorf("failed to get wallet for %s: %w", user.Username, err)
			}

			// The fixed ref makes re-running the seed replay instead of
			// double-crediting.
			result, err := pointLedger.Credit(context.Background(), wallet.ID, fanData.points, models.SourceEarned, "seed-welcome", map[string]any{
				"reason": "seed welcome grant",
			})
			if err != nil {
				return fmt.Errorf("failed to credit wallet for %s: %w", user.Username, err)
			}
			if result.Replayed {
				log.Info("Wallet for %s already credited, skipping", user.Username)
			} else {
				log.Info("Credited %d earned points to %s (tier %s)", fanData.points, user.Username, status.TierFor(result.Wallet.StatusPoints()))
			}

			if err := pushWelcomeNotification(redisClient, user.ID, clubID, log); err != nil {
				log.Error("Failed to push welcome notification for %s: %v", user.Username, err)
			}
		}
	}

	for _, clubID := range clubIDs {
		if err := seedRewards(db, s3Client, log, clubID); err != nil {
			return err
		}
		if err := seedCampaigns(db, log, clubID); err != nil {
			return err
		}
	}

	return nil
}

func seedUser(db *gorm.DB, log *logger.Logger, email, username, password string, role models.UserRole) (*models.User, error) {
	var existing models.User
	result := db.Where("email = ? OR username = ?", email, username).First(&existing)
	if result.Error == nil {
		log.Info("User %s already exists, skipping", username)
		return &existing, nil
	}

	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	user := &models.User{
		Email:    email,
		Username: username,
		Password: string(hashedPassword),
		Role:     role,
		IsActive: true,
	}
	if err := user.BeforeCreate(nil); err != nil {
		return nil, fmt.Errorf("failed to generate user ID: %w", err)
	}

	if err := db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}

	log.Info("Created user: %s (%s)", user.Username, user.Email)
	return user, nil
}

func seedClub(db *gorm.DB, log *logger.Logger, name, slug, artist string) (*models.Club, error) {
	var existing models.Club
	result := db.Where("slug = ?", slug).First(&existing)
	if result.Error == nil {
		log.Info("Club %s already exists, skipping", slug)
		return &existing, nil
	}

	club := &models.Club{
		Name:       name,
		Slug:       slug,
		ArtistName: artist,
	}
	if err := club.BeforeCreate(nil); err != nil {
		return nil, fmt.Errorf("failed to generate club ID: %w", err)
	}

	if err := db.Create(club).Error; err != nil {
		return nil, fmt.Errorf("failed to create club %s: %w", slug, err)
	}

	log.Info("Created club: %s", club.Name)
	return club, nil
}

func seedMembership(db *gorm.DB, log *logger.Logger, userID, clubID string) error {
	var existing models.Membership
	result := db.Where("user_id = ? AND club_id = ?", userID, clubID).First(&existing)
	if result.Error == nil {
		return nil
	}

	membership := &models.Membership{
		UserID: userID,
		ClubID: clubID,
	}
	if err := membership.BeforeCreate(nil); err != nil {
		return fmt.Errorf("failed to generate membership ID: %w", err)
	}

	if err := db.Create(membership).Error; err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	log.Info("Created membership: user %s in club %s", userID, clubID)
	return nil
}

func seedRewards(db *gorm.DB, s3Client *s3.Client, log *logger.Logger, clubID string) error {
	rewards := []models.Reward{
		{
			ClubID:      clubID,
			Title:       "Unreleased Acoustic Demo",
			Description: "A download nobody outside the club will ever hear",
			Tier:        status.TierCadet,
			Kind:        models.RewardKindDigital,
			PointValue:  50,
		},
		{
			ClubID:             clubID,
			Title:              "Signed Tour Poster",
			Description:        "Numbered print, signed by the whole band",
			Tier:               status.TierResident,
			Kind:               models.RewardKindPhysical,
			PointValue:         150,
			PriceCents:         3500,
			OriginalPriceCents: 5000,
			Quantity:           100,
		},
		{
			ClubID:             clubID,
			Title:              "Soundcheck Hang",
			Description:        "Watch soundcheck from the floor before doors",
			Tier:               status.TierHeadliner,
			Kind:               models.RewardKindExperience,
			PointValue:         400,
			PriceCents:         12000,
			OriginalPriceCents: 20000,
			Quantity:           10,
		},
	}

	for i := range rewards {
		reward := &rewards[i]

		var existing models.Reward
		result := db.Where("club_id = ? AND title = ?", clubID, reward.Title).First(&existing)
		if result.Error == nil {
			log.Info("Reward %q already exists, skipping", reward.Title)
			continue
		}

		if err := reward.BeforeCreate(nil); err != nil {
			return fmt.Errorf("failed to generate reward ID: %w", err)
		}

		if reward.Kind == models.RewardKindDigital {
			assetKey := fmt.Sprintf("rewards/%s/%s.txt", clubID, reward.ID)
			placeholder := fmt.Sprintf("Placeholder asset for %q seeded at %s\n", reward.Title, time.Now().UTC().Format(time.RFC3339))
			if _, err := s3Client.UploadFile(assetKey, bytes.NewReader([]byte(placeholder)), "text/plain"); err != nil {
				return fmt.Errorf("failed to upload reward asset: %w", err)
			}
			reward.AssetKey = assetKey
			log.Info("Uploaded reward asset: %s", assetKey)
		}

		reward.Active = true
		if err := db.Create(reward).Error; err != nil {
			return fmt.Errorf("failed to create reward %q: %w", reward.Title, err)
		}

		log.Info("Created reward: %s (%s, tier %s)", reward.Title, reward.Kind, reward.Tier)
	}

	return nil
}

func seedCampaigns(db *gorm.DB, log *logger.Logger, clubID string) error {
	now := time.Now().UTC()
	fundedAt := now.Add(-48 * time.Hour)

	campaigns := []models.Campaign{
		{
			ClubID:           clubID,
			Title:            "Vinyl Repress",
			Description:      "180g double LP repress of the debut album",
			FundingGoalCents: 500000,
			UnitPriceCents:   3500,
			Status:           models.CampaignStatusActive,
			Deadline:         now.Add(30 * 24 * time.Hour),
		},
		{
			ClubID:              clubID,
			Title:               "Hometown Secret Show",
			Description:         "A one-night club show, members only",
			FundingGoalCents:    200000,
			CurrentFundingCents: 214500,
			ReceivedCents:       198000,
			TotalUnitsSold:      66,
			UnitPriceCents:      3000,
			Status:              models.CampaignStatusFunded,
			Deadline:            now.Add(-24 * time.Hour),
			FundedAt:            &fundedAt,
		},
	}

	for i := range campaigns {
		campaign := &campaigns[i]

		var existing models.Campaign
		result := db.Where("club_id = ? AND title = ?", clubID, campaign.Title).First(&existing)
		if result.Error == nil {
			log.Info("Campaign %q already exists, skipping", campaign.Title)
			continue
		}

		if err := campaign.BeforeCreate(nil); err != nil {
			return fmt.Errorf("failed to generate campaign ID: %w", err)
		}

		if err := db.Create(campaign).Error; err != nil {
			return fmt.Errorf("failed to create campaign %q: %w", campaign.Title, err)
		}

		log.Info("Created campaign: %s (%s, %d%% funded)", campaign.Title, campaign.Status, campaign.PercentFunded())
	}

	return nil
}

func pushWelcomeNotification(redisClient *redis.Client, userID, clubID string, log *logger.Logger) error {
	ctx := context.Background()
	inboxKey := fmt.Sprintf("notifications:%s", userID)

	// One welcome per inbox; re-running the seed should not stack them.
	existing, err := redisClient.LRange(ctx, inboxKey, 0, -1).Result()
	if err == nil {
		for _, raw := range existing {
			if bytes.Contains([]byte(raw), []byte(`"type":"welcome"`)) {
				return nil
			}
		}
	}

	notification := map[string]interface{}{
		"user_id":    userID,
		"title":      "Welcome to the club",
		"message":    "Your membership is live. Earn points, climb tiers, claim rewards.",
		"type":       "welcome",
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]interface{}{
			"club_id": clubID,
		},
	}

	notificationJSON, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	if err := redisClient.LPush(ctx, inboxKey, notificationJSON).Err(); err != nil {
		return err
	}
	redisClient.LTrim(ctx, inboxKey, 0, 99)
	redisClient.Expire(ctx, inboxKey, 30*24*time.Hour)

	log.Info("Pushed welcome notification for user %s", userID)
	return nil
}
